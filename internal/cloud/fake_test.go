package cloud

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infinityhole/api/internal/storage"
)

// memProvider is an in-memory storage.Provider.
type memProvider struct {
	name      string
	limitMB   float64
	available bool

	mu         sync.Mutex
	objects    map[string][]storage.FileRecord // user -> files in upload order
	seq        int
	quotaCalls int
	uploadErr  error
	listErr    error
}

func newMem(name string, limitMB float64) *memProvider {
	return &memProvider{name: name, limitMB: limitMB, available: true, objects: map[string][]storage.FileRecord{}}
}

func (p *memProvider) Name() string    { return p.name }
func (p *memProvider) Available() bool { return p.available }

func (p *memProvider) Upload(_ context.Context, userID, filename string, content []byte) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploadErr != nil {
		return "", "", p.uploadErr
	}
	p.seq++
	id := fmt.Sprintf("%d_%s", p.seq, filename)
	p.objects[userID] = append(p.objects[userID], storage.FileRecord{
		ID:          id,
		Name:        filename,
		Size:        int64(len(content)),
		Provider:    p.name,
		UploadedAt:  time.Now().UTC(),
		DownloadURL: "mem://" + p.name + "/" + userID + "/" + id,
	})
	return "mem://" + p.name + "/" + userID + "/" + id, id, nil
}

func (p *memProvider) Delete(_ context.Context, userID, fileID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	files := p.objects[userID]
	for i, f := range files {
		if f.ID == fileID {
			p.objects[userID] = append(files[:i], files[i+1:]...)
			return true
		}
	}
	return false
}

func (p *memProvider) FileInfo(_ context.Context, userID, fileID string) (*storage.FileRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.objects[userID] {
		if f.ID == fileID {
			rec := f
			return &rec, nil
		}
	}
	return nil, nil
}

func (p *memProvider) ListFiles(_ context.Context, userID string) ([]storage.FileRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]storage.FileRecord(nil), p.objects[userID]...), nil
}

func (p *memProvider) QuotaUsage(_ context.Context, userID string) (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotaCalls++
	var n int64
	for _, f := range p.objects[userID] {
		n += f.Size
	}
	return storage.BytesToMB(n), p.limitMB, nil
}

// put places an object directly, bypassing the manager.
func (p *memProvider) put(userID, id string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[userID] = append(p.objects[userID], storage.FileRecord{ID: id, Name: storage.NameFromID(id), Size: size, Provider: p.name})
}

func (p *memProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quotaCalls
}

func mb(n float64) []byte {
	return make([]byte, int(n*storage.BytesPerMB))
}

func newTestManager(t *testing.T, providers ...storage.Provider) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	ledger, err := OpenLedger(path)
	require.NoError(t, err)
	return NewManager(providers, ledger, Options{AdBonusMB: 10, AdsMax: 5}), path
}
