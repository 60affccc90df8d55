// Package cloud implements per-user cloud storage on top of the storage providers:
// quota-aware provider selection, a persistent per-user ledger and ad-earned bonus space.
package cloud

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/infinityhole/api/internal/storage"
)

// Entry is one user's persisted storage state.
type Entry struct {
	CurrentProvider int                  `json:"currentProvider"`
	AdsWatched      int                  `json:"adsWatched"`
	BonusMB         map[string]float64   `json:"bonusMb,omitempty"`
	StorageUsedMB   float64              `json:"storageUsedMb"`
	Files           []storage.FileRecord `json:"files"`
}

func (e Entry) clone() Entry {
	out := e
	out.Files = append([]storage.FileRecord(nil), e.Files...)
	if e.BonusMB != nil {
		out.BonusMB = make(map[string]float64, len(e.BonusMB))
		for k, v := range e.BonusMB {
			out.BonusMB[k] = v
		}
	}
	return out
}

// findFile returns the index of the record with id, or -1.
func (e Entry) findFile(id string) int {
	for i, f := range e.Files {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// Ledger is the JSON-file-backed map of user id to Entry.
// The whole document is rewritten atomically after every committed mutation.
type Ledger struct {
	path string

	mu      sync.Mutex // guards entries and the file write
	entries map[string]Entry

	locksMu sync.Mutex
	locks   map[string]*userLock
}

// userLock is dropped from Ledger.locks once nobody holds or waits on it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// OpenLedger loads the document at path. A missing file yields an empty ledger.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		entries: map[string]Entry{},
		locks:   map[string]*userLock{},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("decode ledger %q: %w", path, err)
	}
	return l, nil
}

// Lock serialises a user's read-mutate-persist cycle. Call the returned func to release.
func (l *Ledger) Lock(userID string) func() {
	l.locksMu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.locksMu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()

		l.locksMu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.locksMu.Unlock()
	}
}

// Get returns a copy of the user's entry, or a fresh zero entry that is not stored.
func (l *Ledger) Get(userID string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[userID]; ok {
		return e.clone()
	}
	return Entry{}
}

// Has reports whether the user has a committed entry.
func (l *Ledger) Has(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[userID]
	return ok
}

// Put stores e for the user and persists the document.
// On a failed write the previous in-memory state is restored.
func (l *Ledger) Put(userID string, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, had := l.entries[userID]
	l.entries[userID] = e.clone()

	if err := l.flush(); err != nil {
		if had {
			l.entries[userID] = prev
		} else {
			delete(l.entries, userID)
		}
		return err
	}
	return nil
}

// flush must be called with l.mu held.
func (l *Ledger) flush() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}
	if err := atomic.WriteFile(l.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}
