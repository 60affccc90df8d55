package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/infinityhole/api/internal/storage"
)

// UploadResult is returned by a successful upload.
type UploadResult struct {
	FileID      string  `json:"fileId"`
	Filename    string  `json:"filename"`
	DownloadURL string  `json:"downloadUrl"`
	FileSize    int64   `json:"fileSize"`
	SizeMB      float64 `json:"sizeMb"`
	Provider    string  `json:"provider"`
}

// StorageInfo summarises a user's usage on their current provider.
type StorageInfo struct {
	Provider           string   `json:"provider"`
	UsedMB             float64  `json:"usedMb"`
	LimitMB            float64  `json:"limitMb"`
	AdsWatched         int      `json:"adsWatched"`
	RemainingAds       int      `json:"remainingAds"`
	FileCount          int      `json:"fileCount"`
	AvailableProviders []string `json:"availableProviders"`
}

// AdReward describes the outcome of one ad watch.
type AdReward struct {
	AdsWatched   int     `json:"adsWatched"`
	BonusMB      float64 `json:"bonusMb"`
	Provider     string  `json:"provider"`
	RemainingAds int     `json:"remainingAds"`
}

// Options tunes the Manager.
type Options struct {
	AdBonusMB float64
	AdsMax    int
}

// Manager routes each user's files across the configured providers, keeping a user on
// one provider until it runs out of headroom.
type Manager struct {
	providers []storage.Provider
	ledger    *Ledger
	opts      Options
}

// NewManager creates a Manager over providers in priority order.
func NewManager(providers []storage.Provider, ledger *Ledger, opts Options) *Manager {
	return &Manager{providers: providers, ledger: ledger, opts: opts}
}

// Providers returns the configured providers in priority order.
func (m *Manager) Providers() []storage.Provider {
	return m.providers
}

// UploadFile stores content on a provider with enough headroom and records it.
// A failed provider upload is not retried elsewhere.
func (m *Manager) UploadFile(ctx context.Context, userID, filename string, content []byte) (*UploadResult, error) {
	if !m.anyAvailable() {
		return nil, storage.ErrNoProviderAvailable
	}

	unlock := m.ledger.Lock(userID)
	defer unlock()

	entry := m.ledger.Get(userID)
	sizeMB := storage.BytesToMB(int64(len(content)))

	idx, ok := m.selectProvider(ctx, userID, entry, sizeMB)
	if !ok {
		return nil, fmt.Errorf("%w: %.2f MB does not fit on any provider", storage.ErrQuotaExceeded, sizeMB)
	}
	p := m.providers[idx]

	url, fileID, err := p.Upload(ctx, userID, filename, content)
	if err != nil {
		if errors.Is(err, storage.ErrUploadFailed) || errors.Is(err, storage.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrUploadFailed, p.Name(), err)
	}

	if entry.CurrentProvider != idx {
		slog.Info("cloud: switched provider", "user_id", userID, "from", m.nameAt(entry.CurrentProvider), "to", p.Name())
	}
	entry.CurrentProvider = idx
	entry.Files = append(entry.Files, storage.FileRecord{
		ID:          fileID,
		Name:        storage.NameFromID(fileID),
		Size:        int64(len(content)),
		Provider:    p.Name(),
		UploadedAt:  time.Now().UTC(),
		DownloadURL: url,
	})
	entry.StorageUsedMB += sizeMB

	if err := m.ledger.Put(userID, entry); err != nil {
		// keep object store and ledger consistent
		if !p.Delete(ctx, userID, fileID) {
			slog.Error("cloud: orphaned object after ledger failure", "user_id", userID, "provider", p.Name(), "file_id", fileID)
		}
		return nil, err
	}

	slog.Info("cloud: file uploaded", "user_id", userID, "provider", p.Name(), "file_id", fileID, "size_mb", sizeMB)
	return &UploadResult{
		FileID:      fileID,
		Filename:    storage.NameFromID(fileID),
		DownloadURL: url,
		FileSize:    int64(len(content)),
		SizeMB:      sizeMB,
		Provider:    p.Name(),
	}, nil
}

// SelectProvider returns the index of the provider a file of sizeMB would go to.
// It does not change any state.
func (m *Manager) SelectProvider(ctx context.Context, userID string, sizeMB float64) (int, bool) {
	unlock := m.ledger.Lock(userID)
	defer unlock()
	return m.selectProvider(ctx, userID, m.ledger.Get(userID), sizeMB)
}

// selectProvider keeps the sticky provider when it has room, otherwise scans every
// provider in priority order. Earlier providers are included so a user can move back
// after freeing space.
func (m *Manager) selectProvider(ctx context.Context, userID string, entry Entry, sizeMB float64) (int, bool) {
	sticky := m.currentIndex(entry)
	if sticky >= 0 && m.hasHeadroom(ctx, userID, entry, sticky, sizeMB) {
		return sticky, true
	}
	for i := range m.providers {
		if i == sticky {
			continue
		}
		if m.hasHeadroom(ctx, userID, entry, i, sizeMB) {
			return i, true
		}
	}
	return 0, false
}

func (m *Manager) hasHeadroom(ctx context.Context, userID string, entry Entry, idx int, sizeMB float64) bool {
	p := m.providers[idx]
	if !p.Available() {
		return false
	}
	used, base, err := p.QuotaUsage(ctx, userID)
	if err != nil {
		slog.Warn("cloud: quota check failed", "user_id", userID, "provider", p.Name(), "error", err)
		return false
	}
	return used+sizeMB <= base+entry.BonusMB[p.Name()]
}

// DeleteFile removes a file recorded in the user's ledger.
// It reports false when the id is unknown or the provider did not remove it.
func (m *Manager) DeleteFile(ctx context.Context, userID, fileID string) (bool, error) {
	unlock := m.ledger.Lock(userID)
	defer unlock()

	entry := m.ledger.Get(userID)
	i := entry.findFile(fileID)
	if i < 0 {
		return false, nil
	}
	rec := entry.Files[i]

	p := m.providerByName(rec.Provider)
	if p == nil {
		slog.Warn("cloud: file on unconfigured provider", "user_id", userID, "provider", rec.Provider, "file_id", fileID)
		return false, nil
	}
	if !p.Delete(ctx, userID, fileID) {
		return false, nil
	}

	entry.Files = append(entry.Files[:i], entry.Files[i+1:]...)
	entry.StorageUsedMB = max(0, entry.StorageUsedMB-storage.BytesToMB(rec.Size))

	if err := m.ledger.Put(userID, entry); err != nil {
		return false, err
	}
	slog.Info("cloud: file deleted", "user_id", userID, "provider", rec.Provider, "file_id", fileID)
	return true, nil
}

// ListFiles returns the user's files. The current provider's live listing is used to
// drop records whose objects are gone and adopt objects the ledger does not know;
// records on other providers are kept as-is. When the listing fails the stored
// ledger is returned. Users without a ledger entry get the live view only.
func (m *Manager) ListFiles(ctx context.Context, userID string) ([]storage.FileRecord, error) {
	unlock := m.ledger.Lock(userID)
	defer unlock()

	entry := m.ledger.Get(userID)
	idx := m.currentIndex(entry)
	if idx < 0 {
		return nonNil(entry.Files), nil
	}
	p := m.providers[idx]

	live, err := p.ListFiles(ctx, userID)
	if err != nil {
		slog.Warn("cloud: live listing failed, serving ledger", "user_id", userID, "provider", p.Name(), "error", err)
		return nonNil(entry.Files), nil
	}

	merged, changed := reconcile(entry.Files, live, p.Name())
	if changed && m.ledger.Has(userID) {
		entry.Files = merged
		entry.StorageUsedMB = totalMB(merged)
		if err := m.ledger.Put(userID, entry); err != nil {
			slog.Warn("cloud: persist reconciled ledger", "user_id", userID, "error", err)
		}
	}
	return nonNil(merged), nil
}

// reconcile merges a provider's live listing into the ledger records.
// Live data refreshes size and URL of known records without counting as a change.
func reconcile(recorded, live []storage.FileRecord, provider string) ([]storage.FileRecord, bool) {
	liveByID := make(map[string]storage.FileRecord, len(live))
	for _, f := range live {
		liveByID[f.ID] = f
	}

	var (
		merged  = make([]storage.FileRecord, 0, len(recorded)+len(live))
		seen    = make(map[string]bool, len(live))
		changed bool
	)
	for _, rec := range recorded {
		if rec.Provider != provider {
			merged = append(merged, rec)
			continue
		}
		l, ok := liveByID[rec.ID]
		if !ok {
			changed = true
			continue
		}
		seen[rec.ID] = true
		if l.Size != rec.Size {
			rec.Size = l.Size
			changed = true
		}
		if l.DownloadURL != "" {
			rec.DownloadURL = l.DownloadURL
		}
		merged = append(merged, rec)
	}
	for _, l := range live {
		if !seen[l.ID] {
			l.Provider = provider
			merged = append(merged, l)
			seen[l.ID] = true
			changed = true
		}
	}
	return merged, changed
}

// FileInfo returns live metadata for a file recorded in the user's ledger.
func (m *Manager) FileInfo(ctx context.Context, userID, fileID string) (*storage.FileRecord, error) {
	unlock := m.ledger.Lock(userID)
	defer unlock()

	entry := m.ledger.Get(userID)
	i := entry.findFile(fileID)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	rec := entry.Files[i]

	p := m.providerByName(rec.Provider)
	if p == nil || !p.Available() {
		return nil, fmt.Errorf("%w: %s", storage.ErrProviderUnavailable, rec.Provider)
	}
	info, err := p.FileInfo(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, storage.ErrNotFound
	}
	return info, nil
}

// StorageInfo reports usage against the effective limit of the user's current provider.
func (m *Manager) StorageInfo(ctx context.Context, userID string) (*StorageInfo, error) {
	if len(m.providers) == 0 {
		return nil, storage.ErrNoProviderAvailable
	}

	unlock := m.ledger.Lock(userID)
	defer unlock()

	entry := m.ledger.Get(userID)
	idx := m.currentIndex(entry)
	if idx < 0 {
		return nil, storage.ErrNoProviderAvailable
	}
	p := m.providers[idx]

	used, base, err := p.QuotaUsage(ctx, userID)
	if err != nil {
		slog.Warn("cloud: live quota unavailable, using ledger total", "user_id", userID, "provider", p.Name(), "error", err)
		used = entry.StorageUsedMB
	}

	return &StorageInfo{
		Provider:           p.Name(),
		UsedMB:             used,
		LimitMB:            base + entry.BonusMB[p.Name()],
		AdsWatched:         entry.AdsWatched,
		RemainingAds:       m.remainingAds(entry),
		FileCount:          len(entry.Files),
		AvailableProviders: m.availableNames(),
	}, nil
}

// WatchAd credits the ad bonus to the user's current provider and pins the user to it.
// The bonus belongs to this user only.
func (m *Manager) WatchAd(ctx context.Context, userID string) (*AdReward, error) {
	if len(m.providers) == 0 {
		return nil, storage.ErrNoProviderAvailable
	}

	unlock := m.ledger.Lock(userID)
	defer unlock()

	entry := m.ledger.Get(userID)
	idx := m.currentIndex(entry)
	if idx < 0 {
		return nil, storage.ErrNoProviderAvailable
	}
	entry.CurrentProvider = idx
	name := m.providers[idx].Name()

	entry.AdsWatched++
	if entry.BonusMB == nil {
		entry.BonusMB = map[string]float64{}
	}
	entry.BonusMB[name] += m.opts.AdBonusMB

	if err := m.ledger.Put(userID, entry); err != nil {
		return nil, err
	}

	slog.Info("cloud: ad watched", "user_id", userID, "provider", name, "ads_watched", entry.AdsWatched)
	return &AdReward{
		AdsWatched:   entry.AdsWatched,
		BonusMB:      m.opts.AdBonusMB,
		Provider:     name,
		RemainingAds: m.remainingAds(entry),
	}, nil
}

func (m *Manager) remainingAds(e Entry) int {
	return max(0, m.opts.AdsMax-e.AdsWatched)
}

func (m *Manager) anyAvailable() bool {
	for _, p := range m.providers {
		if p.Available() {
			return true
		}
	}
	return false
}

func (m *Manager) availableNames() []string {
	names := []string{}
	for _, p := range m.providers {
		if p.Available() {
			names = append(names, p.Name())
		}
	}
	return names
}

// currentIndex resolves the user's sticky provider. An out-of-range or unavailable
// index moves to the first available provider; -1 means none is available.
func (m *Manager) currentIndex(e Entry) int {
	if m.validIndex(e.CurrentProvider) && m.providers[e.CurrentProvider].Available() {
		return e.CurrentProvider
	}
	for i, p := range m.providers {
		if p.Available() {
			return i
		}
	}
	return -1
}

func (m *Manager) providerByName(name string) storage.Provider {
	for _, p := range m.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (m *Manager) validIndex(i int) bool {
	return i >= 0 && i < len(m.providers)
}

func (m *Manager) nameAt(i int) string {
	if m.validIndex(i) {
		return m.providers[i].Name()
	}
	return ""
}

func totalMB(files []storage.FileRecord) float64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return storage.BytesToMB(n)
}

func nonNil(files []storage.FileRecord) []storage.FileRecord {
	if files == nil {
		return []storage.FileRecord{}
	}
	return files
}
