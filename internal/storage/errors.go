package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is returned when a provider is unconfigured or failed to initialise.
	ErrProviderUnavailable = errors.New("storage provider unavailable")
	// ErrUploadFailed wraps a transport failure during upload.
	ErrUploadFailed = errors.New("upload failed")
	// ErrDeleteFailed wraps a transport failure during delete.
	ErrDeleteFailed = errors.New("delete failed")
	// ErrQuotaExceeded is returned when no available provider has headroom for the file.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrNoProviderAvailable is returned when no provider is available at all.
	ErrNoProviderAvailable = errors.New("no storage provider available")
	// ErrNotFound is returned when an id is absent from the user's ledger.
	ErrNotFound = errors.New("file not found")
)

// wrap attaches the provider name and cause to a sentinel.
func wrap(sentinel error, provider string, cause error) error {
	return fmt.Errorf("%w: %s: %v", sentinel, provider, cause)
}
