package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_PROVIDERS", "")
	t.Setenv("AD_BONUS_MB", "")

	cfg := Load()

	assert.Equal(t, []string{"minio", "s3", "local"}, cfg.StorageProviders)
	assert.Equal(t, 10, cfg.AdBonusMB)
	assert.Equal(t, 100, cfg.MinioQuotaMB)
	assert.Equal(t, 25000, cfg.S3QuotaMB)
	assert.Equal(t, 1000, cfg.LocalQuotaMB)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORAGE_PROVIDERS", " Local , s3,,")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("CLEANUP_INTERVAL", "15m")
	t.Setenv("LOCAL_QUOTA_MB", "42")

	cfg := Load()

	require.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"local", "s3"}, cfg.StorageProviders)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 42, cfg.LocalQuotaMB)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MINIO_USE_SSL", "maybe")
	t.Setenv("JWT_TTL", "forever")
	t.Setenv("MAX_UPLOAD_MB", "lots")

	cfg := Load()

	assert.False(t, cfg.MinioUseSSL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 500, cfg.MaxUploadMB)
}
