package storage

import (
	"context"
	"log/slog"

	"github.com/infinityhole/api/internal/config"
)

// NewProviders builds the providers named in cfg.StorageProviders, in that priority order.
// Unknown names are skipped with a warning. The local provider is returned separately
// so the HTTP layer can serve its directory; it is nil when not configured.
func NewProviders(ctx context.Context, cfg *config.Config) ([]Provider, *LocalProvider) {
	var (
		providers []Provider
		local     *LocalProvider
		seen      = map[string]bool{}
	)

	for _, name := range cfg.StorageProviders {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "minio":
			providers = append(providers, NewMinioProvider(ctx, MinioConfig{
				Endpoint:   cfg.MinioEndpoint,
				AccessKey:  cfg.MinioAccessKey,
				SecretKey:  cfg.MinioSecretKey,
				Bucket:     cfg.MinioBucket,
				PublicBase: cfg.MinioPublicBase,
				UseSSL:     cfg.MinioUseSSL,
				QuotaMB:    float64(cfg.MinioQuotaMB),
			}))
		case "s3":
			providers = append(providers, NewS3Provider(ctx, S3Config{
				Region:        cfg.S3Region,
				Bucket:        cfg.S3Bucket,
				AccessKey:     cfg.S3AccessKey,
				SecretKey:     cfg.S3SecretKey,
				Endpoint:      cfg.S3Endpoint,
				PresignExpiry: cfg.S3PresignExpiry,
				QuotaMB:       float64(cfg.S3QuotaMB),
			}))
		case "local":
			local = NewLocalProvider(cfg.LocalStorageDir, cfg.LocalPublicPath, float64(cfg.LocalQuotaMB))
			providers = append(providers, local)
		default:
			slog.Warn("storage: unknown provider in STORAGE_PROVIDERS, skipping", "name", name)
		}
	}

	for _, p := range providers {
		slog.Info("storage: provider registered", "name", p.Name(), "available", p.Available())
	}
	return providers, local
}
