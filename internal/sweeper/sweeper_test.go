package sweeper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"breakbot/internal/config"
	"breakbot/internal/engine"
	"breakbot/internal/notify"
	"breakbot/internal/transport"
	logx "breakbot/pkg/logx"
)

const testConfig = `
timezone: UTC
telegram:
  token: "t"
maintenance:
  sweep_interval: 45s
communities:
  - chat_id: -100
    pools:
      morning:
        break_thread_id: 11
        rez_thread_id: 12
  - chat_id: -200
    pools:
      morning:
        break_thread_id: 31
        rez_thread_id: 32
`

type fakeEngine struct {
	mu      sync.Mutex
	swept   []int64
	notices map[int64][]engine.Notification
	fail    map[int64]error
}

func (f *fakeEngine) Sweep(ctx context.Context, chatID int64) ([]engine.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swept = append(f.swept, chatID)
	if err := f.fail[chatID]; err != nil {
		return nil, err
	}
	return f.notices[chatID], nil
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []transport.ChatTarget
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return transport.MessageRef{}, nil
}

func loadConfig(t *testing.T) *config.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m := config.NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load config: %v", err)
	}
	return m
}

func TestSweepAllRoutesNotices(t *testing.T) {
	t.Parallel()
	cfgm := loadConfig(t)
	eng := &fakeEngine{
		notices: map[int64][]engine.Notification{
			-100: {
				{Pool: "morning", Kind: engine.ChanRez, Text: "expired"},
				{Pool: "morning", Kind: engine.ChanBreak, Text: "closed"},
				{Pool: "night", Kind: engine.ChanBreak, Text: "orphan"}, // unconfigured pool
			},
		},
		fail: map[int64]error{-200: errors.New("db locked")},
	}
	ad := &fakeAdapter{}
	sink := notify.New(notify.Config{RatePerSec: 1000}, ad, logx.Nop())
	sink.Start(context.Background())
	defer sink.Stop(context.Background())

	s := New(cfgm, eng, sink, logx.Nop())
	s.SweepAll(context.Background())

	eng.mu.Lock()
	swept := append([]int64(nil), eng.swept...)
	eng.mu.Unlock()
	if len(swept) != 2 || swept[0] != -100 || swept[1] != -200 {
		t.Fatalf("swept = %v, want [-100 -200]", swept)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		ad.mu.Lock()
		n := len(ad.sent)
		ad.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("delivered %d notices, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	threads := []int{ad.sent[0].ThreadID, ad.sent[1].ThreadID}
	if !(contains(threads, 11) && contains(threads, 12)) {
		t.Fatalf("notice threads = %v, want 11 and 12", threads)
	}
}

func TestSweepStartStop(t *testing.T) {
	t.Parallel()
	cfgm := loadConfig(t)
	ad := &fakeAdapter{}
	sink := notify.New(notify.Config{RatePerSec: 1000}, ad, logx.Nop())
	sink.Start(context.Background())
	defer sink.Stop(context.Background())

	s := New(cfgm, &fakeEngine{}, sink, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", defaultInterval},
		{"45s", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"garbage", defaultInterval},
		{"-10s", defaultInterval},
	}
	for _, tc := range tests {
		cfg := &config.Config{}
		cfg.Maintenance.SweepInterval = tc.raw
		if got := Interval(cfg); got != tc.want {
			t.Errorf("Interval(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
	if got := Interval(nil); got != defaultInterval {
		t.Errorf("Interval(nil) = %v", got)
	}
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
