// Package sweeper drives the engine's time-based upkeep. A cron job walks
// every configured community on a fixed interval so reservations expire,
// overrun breaks close and waitlists advance even when nobody is typing.
package sweeper

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"breakbot/internal/config"
	"breakbot/internal/engine"
	"breakbot/internal/notify"
	logx "breakbot/pkg/logx"
)

const defaultInterval = 30 * time.Second

// Engine is the slice of the break engine the sweeper needs.
type Engine interface {
	Sweep(ctx context.Context, chatID int64) ([]engine.Notification, error)
}

type Sweeper struct {
	cfgm *config.Manager
	eng  Engine
	sink *notify.Sink
	log  logx.Logger

	c       *cron.Cron
	running atomic.Bool
}

func New(cfgm *config.Manager, eng Engine, sink *notify.Sink, log logx.Logger) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{cfgm: cfgm, eng: eng, sink: sink, log: log}
}

// Interval resolves the sweep interval from config, falling back on the
// default for empty or unparseable values.
func Interval(cfg *config.Config) time.Duration {
	if cfg == nil {
		return defaultInterval
	}
	raw := cfg.Maintenance.SweepInterval
	if raw == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultInterval
	}
	return d
}

func (s *Sweeper) Start(ctx context.Context) error {
	interval := Interval(s.cfgm.Get())
	s.c = cron.New()
	_, err := s.c.AddFunc("@every "+interval.String(), func() {
		s.SweepAll(ctx)
	})
	if err != nil {
		return err
	}
	s.c.Start()
	s.log.Info("sweeper started", logx.Duration("interval", interval))
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) {
	if s.c == nil {
		return
	}
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("sweeper stopped")
}

// SweepAll runs one pass over every configured community. Overlapping
// passes are skipped rather than queued.
func (s *Sweeper) SweepAll(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in sweep",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	cfg := s.cfgm.Get()
	if cfg == nil {
		return
	}
	for _, cc := range cfg.Communities {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		notices, err := s.eng.Sweep(sctx, cc.ChatID)
		cancel()
		if err != nil {
			s.log.Warn("sweep failed",
				logx.Int64("chat_id", cc.ChatID), logx.Err(err))
			continue
		}
		for _, n := range notices {
			out, ok := notify.Route(cc, n)
			if !ok {
				continue
			}
			_ = s.sink.Push(out)
		}
	}
}
