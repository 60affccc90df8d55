// Package storage defines the provider contract over heterogeneous object stores.
// Each backing store gets its own implementation; the active set and its priority
// order are chosen through configuration (see NewProviders).
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BytesPerMB is the divisor used for every MB figure in the quota accounting.
const BytesPerMB = 1024 * 1024

// FileRecord describes one uploaded object.
type FileRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Provider    string    `json:"provider"`
	UploadedAt  time.Time `json:"uploadedAt"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

// Provider is the uniform contract every backing store implements.
type Provider interface {
	// Name identifies the variant; it is recorded on every FileRecord.
	Name() string
	// Upload stores content under the user's namespace and returns its URL and id.
	Upload(ctx context.Context, userID, filename string, content []byte) (downloadURL, fileID string, err error)
	// Delete reports whether the object was removed. Missing objects and
	// transport failures both yield false.
	Delete(ctx context.Context, userID, fileID string) bool
	// FileInfo returns nil, nil when the object does not exist.
	FileInfo(ctx context.Context, userID, fileID string) (*FileRecord, error)
	// ListFiles enumerates the user's namespace in backing-store order.
	ListFiles(ctx context.Context, userID string) ([]FileRecord, error)
	// QuotaUsage sums a live listing and returns it with the provider's base limit.
	QuotaUsage(ctx context.Context, userID string) (usedMB, limitMB float64, err error)
	// Available is true only when configuration was present and init succeeded.
	Available() bool
}

// BytesToMB converts a byte count to MB.
func BytesToMB(n int64) float64 {
	return float64(n) / BytesPerMB
}

// NameFromID recovers the original filename embedded after the first underscore.
func NameFromID(id string) string {
	if i := strings.Index(id, "_"); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}

// sanitizeName keeps only the base name and strips separators so it is safe as a key segment.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" || name == ".." {
		return "file"
	}
	return name
}

// newTimestampID builds "<unix>-<random>_<name>"; the random part keeps two uploads
// of the same name within one second apart.
func newTimestampID(filename string) string {
	return fmt.Sprintf("%d-%s_%s", time.Now().Unix(), uuid.NewString()[:8], sanitizeName(filename))
}

// newContentHashID builds "<hash>_<name>" from the user, name, content and upload time.
func newContentHashID(userID, filename string, content []byte) string {
	name := sanitizeName(filename)
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(content)
	fmt.Fprintf(h, "%d", time.Now().UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:16] + "_" + name
}

// userPrefix is the key prefix of a user's namespace in the remote stores.
func userPrefix(userID string) string {
	return "users/" + userID + "/files/"
}

// validSegment rejects ids that could escape the user's namespace.
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}

func detectContentType(content []byte) string {
	if len(content) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(content)
}

func sumSizes(files []FileRecord) float64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return BytesToMB(total)
}
