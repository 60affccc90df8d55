package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ProviderMinio is the name recorded for objects held by MinioProvider.
const ProviderMinio = "Minio"

// MinioConfig carries the connection settings for MinioProvider.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	PublicBase string
	UseSSL     bool
	QuotaMB    float64
}

// MinioProvider stores objects in a MinIO (or any S3-compatible) bucket with a
// public-read policy, so download URLs are plain links under PublicBase.
type MinioProvider struct {
	client     *minio.Client
	bucket     string
	publicBase string
	quotaMB    float64
	available  bool
}

// NewMinioProvider connects to the endpoint and ensures the bucket exists.
// Missing credentials or a failed handshake yield an unavailable provider rather than an error.
func NewMinioProvider(ctx context.Context, cfg MinioConfig) *MinioProvider {
	p := &MinioProvider{
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		quotaMB:    cfg.QuotaMB,
	}

	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		slog.Warn("storage: minio not configured, provider disabled")
		return p
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		slog.Warn("storage: create minio client", "error", err)
		return p
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		slog.Warn("storage: check minio bucket", "bucket", cfg.Bucket, "error", err)
		return p
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			slog.Warn("storage: create minio bucket", "bucket", cfg.Bucket, "error", err)
			return p
		}
		slog.Info("storage: created bucket", "provider", ProviderMinio, "bucket", cfg.Bucket)
	}

	if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
		slog.Warn("storage: set minio bucket policy", "bucket", cfg.Bucket, "error", err)
		return p
	}

	p.client = client
	p.available = true
	return p
}

func (p *MinioProvider) Name() string    { return ProviderMinio }
func (p *MinioProvider) Available() bool { return p.available }

func (p *MinioProvider) Upload(ctx context.Context, userID, filename string, content []byte) (string, string, error) {
	if !p.available {
		return "", "", ErrProviderUnavailable
	}
	fileID := newTimestampID(filename)
	key := userPrefix(userID) + fileID

	_, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: detectContentType(content),
	})
	if err != nil {
		return "", "", wrap(ErrUploadFailed, ProviderMinio, err)
	}
	return p.publicURL(key), fileID, nil
}

func (p *MinioProvider) Delete(ctx context.Context, userID, fileID string) bool {
	if !p.available || !validSegment(fileID) {
		return false
	}
	key := userPrefix(userID) + fileID

	if _, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{}); err != nil {
		if !isMinioNotFound(err) {
			slog.Warn("storage: stat before delete", "provider", ProviderMinio, "key", key, "error", err)
		}
		return false
	}
	if err := p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		slog.Error("storage: delete object", "provider", ProviderMinio, "key", key, "error", wrap(ErrDeleteFailed, ProviderMinio, err))
		return false
	}
	return true
}

func (p *MinioProvider) FileInfo(ctx context.Context, userID, fileID string) (*FileRecord, error) {
	if !p.available {
		return nil, ErrProviderUnavailable
	}
	if !validSegment(fileID) {
		return nil, nil
	}
	key := userPrefix(userID) + fileID

	info, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}
	return &FileRecord{
		ID:          fileID,
		Name:        NameFromID(fileID),
		Size:        info.Size,
		Provider:    ProviderMinio,
		UploadedAt:  info.LastModified.UTC(),
		DownloadURL: p.publicURL(key),
		ContentType: info.ContentType,
	}, nil
}

func (p *MinioProvider) ListFiles(ctx context.Context, userID string) ([]FileRecord, error) {
	if !p.available {
		return nil, ErrProviderUnavailable
	}
	prefix := userPrefix(userID)

	var files []FileRecord
	for obj := range p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %q: %w", prefix, obj.Err)
		}
		fileID := strings.TrimPrefix(obj.Key, prefix)
		if fileID == "" {
			continue
		}
		files = append(files, FileRecord{
			ID:          fileID,
			Name:        NameFromID(fileID),
			Size:        obj.Size,
			Provider:    ProviderMinio,
			UploadedAt:  obj.LastModified.UTC(),
			DownloadURL: p.publicURL(obj.Key),
			ContentType: obj.ContentType,
		})
	}
	return files, nil
}

func (p *MinioProvider) QuotaUsage(ctx context.Context, userID string) (float64, float64, error) {
	files, err := p.ListFiles(ctx, userID)
	if err != nil {
		return 0, p.quotaMB, err
	}
	return sumSizes(files), p.quotaMB, nil
}

// publicURL returns the browser-accessible URL for key,
// e.g. "http://localhost:9000/infinityhole/users/42/files/1700000000-ab12cd34_a.txt".
func (p *MinioProvider) publicURL(key string) string {
	return p.publicBase + "/" + key
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// publicReadPolicy returns a bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
