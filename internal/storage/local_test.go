package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *LocalProvider {
	t.Helper()
	p := NewLocalProvider(filepath.Join(t.TempDir(), "cloud"), "/cloud_storage/", 1)
	require.True(t, p.Available())
	return p
}

func TestLocalProvider_UploadInfoDelete(t *testing.T) {
	p := newTestLocal(t)
	ctx := t.Context()

	url, id, err := p.Upload(ctx, "u1", "notes.txt", []byte("hello world"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "_notes.txt"))
	assert.Equal(t, "/cloud_storage/u1/"+id, url)

	info, err := p.FileInfo(ctx, "u1", id)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, "notes.txt", info.Name)
	assert.Equal(t, int64(11), info.Size)
	assert.Equal(t, ProviderLocal, info.Provider)

	assert.True(t, p.Delete(ctx, "u1", id))
	assert.False(t, p.Delete(ctx, "u1", id), "second delete reports nothing removed")

	info, err = p.FileInfo(ctx, "u1", id)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestLocalProvider_ListAndQuota(t *testing.T) {
	p := newTestLocal(t)
	ctx := t.Context()

	files, err := p.ListFiles(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, _, err = p.Upload(ctx, "u1", "a.bin", make([]byte, BytesPerMB/4))
	require.NoError(t, err)
	_, _, err = p.Upload(ctx, "u1", "b.bin", make([]byte, BytesPerMB/4))
	require.NoError(t, err)
	_, _, err = p.Upload(ctx, "u2", "c.bin", []byte("other user"))
	require.NoError(t, err)

	files, err = p.ListFiles(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	used, limit, err := p.QuotaUsage(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, used, 1e-9)
	assert.Equal(t, 1.0, limit)
}

func TestLocalProvider_RejectsTraversal(t *testing.T) {
	p := newTestLocal(t)
	ctx := t.Context()

	outside := filepath.Join(filepath.Dir(p.BaseDir()), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	assert.False(t, p.Delete(ctx, "..", "secret.txt"))
	assert.False(t, p.Delete(ctx, "u1", "../../secret.txt"))
	_, err := os.Stat(outside)
	assert.NoError(t, err)

	_, _, err = p.Upload(ctx, "../x", "a.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrUploadFailed)

	info, err := p.FileInfo(ctx, "u1", "../secret.txt")
	assert.NoError(t, err)
	assert.Nil(t, info)
}

func TestLocalProvider_UnusableDirIsUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	p := NewLocalProvider(filepath.Join(file, "sub"), "/cloud_storage", 1)
	assert.False(t, p.Available())

	_, _, err := p.Upload(t.Context(), "u1", "a.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
