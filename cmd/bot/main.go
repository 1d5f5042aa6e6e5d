package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"breakbot/internal/config"
	"breakbot/internal/engine"
	"breakbot/internal/notify"
	"breakbot/internal/router"
	"breakbot/internal/shiftcal"
	"breakbot/internal/store"
	"breakbot/internal/sweeper"
	"breakbot/internal/transport"
	"breakbot/internal/transport/telegram"
	logx "breakbot/pkg/logx"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return config.Validate(c)
	})
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}

	loc := time.Local
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return err
	}

	logSvc, log := logx.New(logCfg(cfg), adapter)
	defer logSvc.Close()
	logSvc.SetChatTarget(transport.ChatTarget{
		ChatID:   cfg.Telegram.LogChatID,
		ThreadID: cfg.Telegram.LogThreadID,
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(st, shiftcal.New(loc), log.With(logx.String("comp", "engine")))

	sink := notify.New(notify.Config{RetryMax: 2}, adapter, log.With(logx.String("comp", "notify")))
	sink.Start(ctx)

	rt := router.New(cfgm, eng, adapter, sink, log.With(logx.String("comp", "router")))
	updates := make(chan transport.Update, 128)
	if err := adapter.Start(ctx, updates); err != nil {
		return err
	}

	routerDone := make(chan error, 1)
	go func() { routerDone <- rt.Run(ctx, updates) }()

	sw := sweeper.New(cfgm, eng, sink, log.With(logx.String("comp", "sweeper")))
	if err := sw.Start(ctx); err != nil {
		return err
	}

	// Hot reload: logging changes and the chat mirror target apply live;
	// community/thread bindings are read per update anyway.
	go func() {
		for newCfg := range cfgm.Subscribe(1) {
			logSvc.Apply(logCfg(newCfg))
			logSvc.SetChatTarget(transport.ChatTarget{
				ChatID:   newCfg.Telegram.LogChatID,
				ThreadID: newCfg.Telegram.LogThreadID,
			})
			log.Info("config reloaded")
		}
	}()
	go func() {
		if err := cfgm.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("breakbot started",
		logx.String("config", cfgPath),
		logx.Int("communities", len(cfg.Communities)))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	sw.Stop(stopCtx)
	_ = adapter.Stop(stopCtx)
	close(updates)
	select {
	case <-routerDone:
	case <-stopCtx.Done():
	}
	sink.Stop(stopCtx)
	if err := eng.Flush(stopCtx); err != nil {
		log.Error("state flush failed", logx.Err(err))
	}
	return nil
}

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}
