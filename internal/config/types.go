package config

// Config is the process configuration. JSON and YAML files are accepted;
// YAML is coerced to JSON and both go through a strict decoder so unknown
// keys are caught at load/reload time.
type Config struct {
	// Timezone anchors every shift-calendar computation. All users share it.
	Timezone string `json:"timezone"`

	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Maintenance MaintenanceConfig `json:"maintenance"`

	Communities []CommunityConfig `json:"communities"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// LogChatID/LogThreadID receive mirrored warn+ log lines when
	// logging.chat is enabled.
	LogChatID   int64 `json:"log_chat_id"`
	LogThreadID int   `json:"log_thread_id"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}
type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the snapshot store driver.
//
// Driver values:
//   - "file": one JSON document per community under Path (a directory)
//   - "sqlite": a single SQLite database file at Path
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite only; empty means default).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type MaintenanceConfig struct {
	// SweepInterval is a Go duration string; empty means "30s".
	SweepInterval string `json:"sweep_interval,omitempty"`
}

// CommunityConfig maps one served Telegram group to its break pools.
// Each pool owns a break thread and a reservation thread (forum topics).
type CommunityConfig struct {
	ChatID             int64                   `json:"chat_id"`
	AdminUserIDs       []int64                 `json:"admin_user_ids"`
	AdminBreakThreadID int                     `json:"admin_break_thread_id,omitempty"`
	Pools              map[string]PoolChannels `json:"pools"`
}

type PoolChannels struct {
	BreakThreadID int `json:"break_thread_id"`
	RezThreadID   int `json:"rez_thread_id"`
}
