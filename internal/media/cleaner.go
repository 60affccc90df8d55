package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Cleaner periodically removes finished downloads older than maxAge.
type Cleaner struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewCleaner creates a Cleaner for dir.
func NewCleaner(dir string, maxAge, interval time.Duration) *Cleaner {
	return &Cleaner{dir: dir, maxAge: maxAge, interval: interval, now: time.Now}
}

// Sweep deletes regular files in dir whose modification time is older than maxAge
// and returns how many were removed. Files that fail to delete are logged and skipped.
func (c *Cleaner) Sweep() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read download dir: %w", err)
	}

	cutoff := c.now().Add(-c.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("media: cleanup failed", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) error {
	interval := c.interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := c.Sweep()
		if err != nil {
			slog.Error("media: cleanup sweep", "error", err)
		} else if n > 0 {
			slog.Info("media: cleaned old downloads", "removed", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
