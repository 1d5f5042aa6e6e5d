package store

import (
	"errors"
	"strings"

	"breakbot/internal/engine"
	logx "breakbot/pkg/logx"
)

// Open initializes the configured store. An empty driver defaults to "file".
func Open(cfg Config, log logx.Logger) (engine.Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
