// Package notify delivers engine notices to their Telegram topics.
//
// Delivery is best-effort: notices are queued and sent by a small worker
// pool behind a rate limiter, with bounded retry. A full queue drops the
// notice rather than blocking command handling.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	rtsup "breakbot/internal/runtime/supervisor"
	"breakbot/internal/transport"
	logx "breakbot/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify sink stopped")
)

// Config controls the delivery pipeline.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Sink is the async delivery pipeline. Safe for concurrent use.
type Sink struct {
	mu sync.Mutex

	log     logx.Logger
	adapter transport.Adapter

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan transport.Notification
	sup       *rtsup.Supervisor
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	return &Sink{
		log:     log,
		adapter: adapter,
		cfg:     cfg,
		// Burst equals the per-second rate so short spikes don't stall.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Start is idempotent.
func (s *Sink) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan transport.Notification, s.cfg.QueueSize)
	s.accepting = true
	// Workers run detached from the caller's ctx so a process-level cancel
	// cannot kill them mid-queue; Stop drains first and cancels last.
	s.sup = rtsup.New(context.WithoutCancel(ctx),
		rtsup.WithLogger(s.log.With(logx.String("comp", "notify"))),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < s.cfg.Workers; i++ {
		name := fmt.Sprintf("worker.%d", i)
		q := s.queue
		s.sup.Go0(name, func(ctx context.Context) {
			s.workerLoop(ctx, q)
		})
	}
}

// Stop blocks intake, closes the queue and waits for the workers to drain
// it, up to the ctx deadline.
func (s *Sink) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.sup = nil
	s.mu.Unlock()

	close(q)
	if sup != nil {
		if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
			sup.Cancel()
			return
		}
		sup.Cancel()
	}
}

// Push enqueues one notice. It never blocks on delivery.
func (s *Sink) Push(n transport.Notification) error {
	s.mu.Lock()
	q := s.queue
	accepting := s.accepting
	s.mu.Unlock()

	if !accepting || q == nil {
		return ErrStopped
	}
	if n.Text == "" {
		return nil
	}
	select {
	case q <- n:
		return nil
	default:
		s.log.Warn("notice dropped, queue full",
			logx.Int64("chat_id", n.Target.ChatID),
			logx.Int("thread_id", n.Target.ThreadID))
		return ErrQueueFull
	}
}

func (s *Sink) workerLoop(ctx context.Context, q <-chan transport.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Sink) sendWithRetry(ctx context.Context, n transport.Notification) {
	if s.adapter == nil {
		return
	}
	opts := n.Options
	if opts == nil {
		opts = &transport.SendOptions{DisablePreview: true}
	}
	text := prefixForPriority(n.Priority) + n.Text

	maxAttempts := 1 + s.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := s.adapter.SendText(callCtx, n.Target, text, opts)
		cancel()
		if err == nil {
			return
		}
		lastErr = err

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(s.cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		}
	}
	s.log.Warn("notice delivery failed",
		logx.Int64("chat_id", n.Target.ChatID),
		logx.Int("thread_id", n.Target.ThreadID),
		logx.Err(lastErr))
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 5:
		return "⚠️ "
	default:
		return ""
	}
}

func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3 so retries from several workers spread out.
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
