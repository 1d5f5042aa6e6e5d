package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate rejects configs the process cannot run with. It is installed as
// the Manager's validator so hot reloads go through the same checks.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("empty config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("maintenance.sweep_interval", cfg.Maintenance.SweepInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if len(cfg.Communities) == 0 {
		return errors.New("at least one community is required")
	}
	seenChat := map[int64]bool{}
	for i, cc := range cfg.Communities {
		at := fmt.Sprintf("communities[%d]", i)
		if cc.ChatID == 0 {
			return fmt.Errorf("%s: chat_id is required", at)
		}
		if seenChat[cc.ChatID] {
			return fmt.Errorf("%s: duplicate chat_id %d", at, cc.ChatID)
		}
		seenChat[cc.ChatID] = true
		if len(cc.Pools) == 0 {
			return fmt.Errorf("%s: at least one pool is required", at)
		}

		seenThread := map[int]string{}
		claim := func(id int, name string) error {
			if id == 0 {
				return fmt.Errorf("%s: %s is required", at, name)
			}
			if prev, dup := seenThread[id]; dup {
				return fmt.Errorf("%s: thread %d bound to both %s and %s", at, id, prev, name)
			}
			seenThread[id] = name
			return nil
		}
		for pool, pc := range cc.Pools {
			switch pool {
			case "morning", "evening", "night":
			default:
				return fmt.Errorf("%s: unknown pool %q", at, pool)
			}
			if err := claim(pc.BreakThreadID, pool+".break_thread_id"); err != nil {
				return err
			}
			if err := claim(pc.RezThreadID, pool+".rez_thread_id"); err != nil {
				return err
			}
		}
		if cc.AdminBreakThreadID != 0 {
			if err := claim(cc.AdminBreakThreadID, "admin_break_thread_id"); err != nil {
				return err
			}
		}
	}
	return nil
}
