package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ProviderLocal is the name recorded for objects held by LocalProvider.
const ProviderLocal = "Local"

// LocalProvider keeps objects on the server's filesystem under baseDir/<userID>/<fileID>.
// Files are served by the HTTP layer under publicPath.
type LocalProvider struct {
	baseDir    string
	publicPath string
	quotaMB    float64
	available  bool
}

// NewLocalProvider ensures baseDir exists. An unusable directory yields an unavailable provider.
func NewLocalProvider(baseDir, publicPath string, quotaMB float64) *LocalProvider {
	p := &LocalProvider{
		baseDir:    baseDir,
		publicPath: "/" + strings.Trim(publicPath, "/"),
		quotaMB:    quotaMB,
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		slog.Warn("storage: local directory unusable, provider disabled", "dir", baseDir, "error", err)
		return p
	}
	p.available = true
	return p
}

func (p *LocalProvider) Name() string    { return ProviderLocal }
func (p *LocalProvider) Available() bool { return p.available }

// BaseDir is the directory served under the public path.
func (p *LocalProvider) BaseDir() string { return p.baseDir }

func (p *LocalProvider) Upload(_ context.Context, userID, filename string, content []byte) (string, string, error) {
	if !p.available {
		return "", "", ErrProviderUnavailable
	}
	if !validSegment(userID) {
		return "", "", wrap(ErrUploadFailed, ProviderLocal, fmt.Errorf("invalid user id %q", userID))
	}

	dir := filepath.Join(p.baseDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", wrap(ErrUploadFailed, ProviderLocal, err)
	}

	fileID := newContentHashID(userID, filename, content)
	if err := os.WriteFile(filepath.Join(dir, fileID), content, 0o644); err != nil {
		return "", "", wrap(ErrUploadFailed, ProviderLocal, err)
	}
	return p.publicURL(userID, fileID), fileID, nil
}

func (p *LocalProvider) Delete(_ context.Context, userID, fileID string) bool {
	if !p.available || !validSegment(userID) || !validSegment(fileID) {
		return false
	}
	if err := os.Remove(filepath.Join(p.baseDir, userID, fileID)); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Error("storage: delete file", "provider", ProviderLocal, "file_id", fileID, "error", wrap(ErrDeleteFailed, ProviderLocal, err))
		}
		return false
	}
	return true
}

func (p *LocalProvider) FileInfo(_ context.Context, userID, fileID string) (*FileRecord, error) {
	if !p.available {
		return nil, ErrProviderUnavailable
	}
	if !validSegment(userID) || !validSegment(fileID) {
		return nil, nil
	}
	info, err := os.Stat(filepath.Join(p.baseDir, userID, fileID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %q: %w", fileID, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}
	rec := p.record(userID, info)
	return &rec, nil
}

func (p *LocalProvider) ListFiles(_ context.Context, userID string) ([]FileRecord, error) {
	if !p.available {
		return nil, ErrProviderUnavailable
	}
	if !validSegment(userID) {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(p.baseDir, userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read user dir: %w", err)
	}

	var files []FileRecord
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, p.record(userID, info))
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].UploadedAt.Before(files[j].UploadedAt) })
	return files, nil
}

func (p *LocalProvider) QuotaUsage(ctx context.Context, userID string) (float64, float64, error) {
	files, err := p.ListFiles(ctx, userID)
	if err != nil {
		return 0, p.quotaMB, err
	}
	return sumSizes(files), p.quotaMB, nil
}

func (p *LocalProvider) record(userID string, info fs.FileInfo) FileRecord {
	return FileRecord{
		ID:          info.Name(),
		Name:        NameFromID(info.Name()),
		Size:        info.Size(),
		Provider:    ProviderLocal,
		UploadedAt:  info.ModTime().UTC(),
		DownloadURL: p.publicURL(userID, info.Name()),
	}
}

func (p *LocalProvider) publicURL(userID, fileID string) string {
	return p.publicPath + "/" + url.PathEscape(userID) + "/" + url.PathEscape(fileID)
}
