package router

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"breakbot/internal/config"
	"breakbot/internal/engine"
	"breakbot/internal/notify"
	"breakbot/internal/shiftcal"
	"breakbot/internal/transport"
	logx "breakbot/pkg/logx"
)

const testConfig = `
timezone: UTC
telegram:
  token: "test-token"
storage:
  driver: file
  path: %s
communities:
  - chat_id: -100
    admin_user_ids: [9]
    admin_break_thread_id: 50
    pools:
      morning:
        break_thread_id: 11
        rez_thread_id: 12
      evening:
        break_thread_id: 21
        rez_thread_id: 22
`

type sentMsg struct {
	target transport.ChatTarget
	text   string
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{target: to, text: text})
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) snapshot() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

type memStore struct {
	mu   sync.Mutex
	data map[int64]*engine.Community
}

func (s *memStore) Load(ctx context.Context, chatID int64) (*engine.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[chatID], nil
}

func (s *memStore) Save(ctx context.Context, c *engine.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = map[int64]*engine.Community{}
	}
	s.data[c.ChatID] = c
	return nil
}

func (s *memStore) Close() error { return nil }

type harness struct {
	adapter *fakeAdapter
	updates chan transport.Update
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := strings.Replace(testConfig, "%s", filepath.Join(dir, "state"), 1)
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfgm := config.NewManager(cfgPath)
	if _, err := cfgm.Load(); err != nil {
		t.Fatalf("load config: %v", err)
	}

	eng := engine.New(&memStore{}, shiftcal.New(time.UTC), logx.Nop(),
		engine.WithNow(func() time.Time { return now }))

	adapter := &fakeAdapter{}
	sink := notify.New(notify.Config{RatePerSec: 1000}, adapter, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	sink.Start(ctx)

	r := New(cfgm, eng, adapter, sink, logx.Nop())
	updates := make(chan transport.Update, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, updates)
	}()
	t.Cleanup(func() {
		close(updates)
		<-done
		sink.Stop(context.Background())
		cancel()
	})

	return &harness{adapter: adapter, updates: updates}
}

func (h *harness) send(msg transport.Message) {
	h.updates <- transport.Update{Message: &msg}
}

func (h *harness) waitForReply(t *testing.T, substr string) sentMsg {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range h.adapter.snapshot() {
			if strings.Contains(m.text, substr) {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no reply containing %q; got %v", substr, h.adapter.snapshot())
	return sentMsg{}
}

func userMsg(threadID int, text string) transport.Message {
	return transport.Message{
		ChatID:       -100,
		ThreadID:     threadID,
		FromID:       100,
		FromUsername: "alice",
		DisplayName:  "Alice | 08:00-16:00",
		Text:         text,
		IsGroup:      true,
	}
}

func TestReserveFlow(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))

	h.send(userMsg(12, "/reserve 10 10:00"))
	got := h.waitForReply(t, "reservation confirmed")
	if got.target.ChatID != -100 || got.target.ThreadID != 12 {
		t.Fatalf("reply went to %+v", got.target)
	}
}

func TestWrongTopicIsRedirected(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))

	h.send(userMsg(12, "/break 10"))
	got := h.waitForReply(t, "break topic")
	// Private replies are addressed to the sender.
	if !strings.Contains(got.text, "@alice") {
		t.Fatalf("reply not addressed: %q", got.text)
	}

	h.send(userMsg(11, "/reserve 10 10:00"))
	h.waitForReply(t, "reservation topic")
}

func TestPoolMismatchRejected(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))

	// Morning-shift user in the evening reservation topic.
	h.send(userMsg(22, "/reserve 10 10:00"))
	h.waitForReply(t, "Wrong topic")
}

func TestAdminGate(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))

	h.send(userMsg(11, "/admin break 15"))
	h.waitForReply(t, "for admins")

	msg := userMsg(50, "/admin grant 100 5")
	msg.FromID = 9
	msg.FromUsername = "root"
	msg.DisplayName = "Root"
	h.send(msg)
	h.waitForReply(t, "Granted")
}

func TestUnknownChatIgnored(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))

	msg := userMsg(11, "/break 10")
	msg.ChatID = -999
	h.send(msg)

	h.send(userMsg(12, "/reservations"))
	h.waitForReply(t, "Your reservations:")
	for _, m := range h.adapter.snapshot() {
		if m.target.ChatID == -999 {
			t.Fatalf("replied to unconfigured chat: %+v", m)
		}
	}
}

func TestHelp(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))

	h.send(userMsg(11, "/help"))
	got := h.waitForReply(t, "/urgent")
	if !strings.Contains(got.text, "/resume") {
		t.Fatalf("break help incomplete: %q", got.text)
	}
}

func TestResolveThread(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Communities: []config.CommunityConfig{{
		ChatID:             -100,
		AdminBreakThreadID: 50,
		Pools: map[string]config.PoolChannels{
			"morning": {BreakThreadID: 11, RezThreadID: 12},
		},
	}}}

	tests := []struct {
		name     string
		chatID   int64
		threadID int
		wantPool string
		wantKind string
		wantOK   bool
	}{
		{"break thread", -100, 11, "morning", threadBreak, true},
		{"rez thread", -100, 12, "morning", threadRez, true},
		{"admin thread", -100, 50, "", threadAdmin, true},
		{"unbound thread", -100, 77, "", "", false},
		{"unknown chat", -5, 11, "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, pool, kind, ok := resolveThread(cfg, tc.chatID, tc.threadID)
			if ok != tc.wantOK || pool != tc.wantPool || kind != tc.wantKind {
				t.Fatalf("got (%q, %q, %v), want (%q, %q, %v)",
					pool, kind, ok, tc.wantPool, tc.wantKind, tc.wantOK)
			}
		})
	}
}
