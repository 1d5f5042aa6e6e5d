package store

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("store closed")

// Config configures the snapshot store.
//
// Driver values:
//   - "file": one JSON document per community under Path (a directory)
//   - "sqlite": a SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
