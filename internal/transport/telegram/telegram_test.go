package telegram

import (
	"context"
	"testing"

	"breakbot/internal/transport"
	logx "breakbot/pkg/logx"
)

func TestDeliverDetachesOnStop(t *testing.T) {
	t.Parallel()
	a := &Adapter{log: logx.Nop()}
	ch := make(chan transport.Update, 1)

	a.runMu.Lock()
	a.out = ch
	a.running = true
	a.runMu.Unlock()

	a.deliver(transport.Update{Message: &transport.Message{ID: 1}})
	if len(ch) != 1 {
		t.Fatalf("queued = %d, want 1", len(ch))
	}
	// a second update is dropped, not blocked on
	a.deliver(transport.Update{Message: &transport.Message{ID: 2}})
	if len(ch) != 1 {
		t.Fatalf("queued = %d after full channel, want 1", len(ch))
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(ch) // the consumer closes its channel after Stop returns

	// a straggling poll callback must be a no-op, not a panic
	a.deliver(transport.Update{Message: &transport.Message{ID: 3}})
}
