package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"breakbot/internal/engine"
	logx "breakbot/pkg/logx"
)

// fileStore keeps one JSON document per community at <dir>/<chatID>.json.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated snapshot behind.
type fileStore struct {
	dir string
	log logx.Logger

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (engine.Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir, log: log}, nil
}

func (s *fileStore) path(chatID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(chatID, 10)+".json")
}

func (s *fileStore) Load(ctx context.Context, chatID int64) (*engine.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, err := os.ReadFile(s.path(chatID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c engine.Community
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", chatID, err)
	}
	return &c, nil
}

func (s *fileStore) Save(ctx context.Context, c *engine.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	final := s.path(c.ChatID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
