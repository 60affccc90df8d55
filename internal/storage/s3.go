package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ProviderS3 is the name recorded for objects held by S3Provider.
const ProviderS3 = "S3"

// S3Config holds configuration for S3Provider.
// Works with AWS S3, MinIO, DigitalOcean Spaces, Cloudflare R2, etc.
type S3Config struct {
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Endpoint      string // optional: for S3-compatible services
	PresignExpiry time.Duration
	QuotaMB       float64
}

// s3API is the subset of *s3.Client used here.
type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type s3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Provider stores objects in a private bucket and hands out presigned GET URLs.
type S3Provider struct {
	client        s3API
	presigner     s3Presigner
	bucket        string
	directBase    string
	presignExpiry time.Duration
	quotaMB       float64
	available     bool
}

// NewS3Provider loads AWS config and ensures the bucket exists.
// Missing bucket or credentials, or a failed bucket check, yield an unavailable provider.
func NewS3Provider(ctx context.Context, cfg S3Config) *S3Provider {
	p := &S3Provider{bucket: cfg.Bucket, presignExpiry: cfg.PresignExpiry, quotaMB: cfg.QuotaMB}

	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		slog.Warn("storage: s3 not configured, provider disabled")
		return p
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		slog.Warn("storage: load aws config", "error", err)
		return p
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return newS3Provider(ctx, client, s3.NewPresignClient(client), cfg)
}

func newS3Provider(ctx context.Context, client s3API, presigner s3Presigner, cfg S3Config) *S3Provider {
	p := &S3Provider{
		client:        client,
		presigner:     presigner,
		bucket:        cfg.Bucket,
		presignExpiry: cfg.PresignExpiry,
		quotaMB:       cfg.QuotaMB,
	}
	if cfg.Endpoint != "" {
		p.directBase = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	} else {
		p.directBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	if err := p.ensureBucket(ctx); err != nil {
		slog.Warn("storage: s3 bucket unavailable", "bucket", cfg.Bucket, "error", err)
		return p
	}
	p.available = true
	return p
}

// ensureBucket checks if the bucket exists and creates it if not.
func (p *S3Provider) ensureBucket(ctx context.Context) error {
	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err == nil {
		return nil
	}
	if _, err := p.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return fmt.Errorf("bucket %q does not exist and could not be created: %w", p.bucket, err)
	}
	slog.Info("storage: created bucket", "provider", ProviderS3, "bucket", p.bucket)
	return nil
}

func (p *S3Provider) Name() string    { return ProviderS3 }
func (p *S3Provider) Available() bool { return p.available }

func (p *S3Provider) Upload(ctx context.Context, userID, filename string, content []byte) (string, string, error) {
	if !p.available {
		return "", "", ErrProviderUnavailable
	}
	fileID := newTimestampID(filename)
	key := userPrefix(userID) + fileID

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(detectContentType(content)),
	})
	if err != nil {
		return "", "", wrap(ErrUploadFailed, ProviderS3, err)
	}
	return p.downloadURL(ctx, key), fileID, nil
}

func (p *S3Provider) Delete(ctx context.Context, userID, fileID string) bool {
	if !p.available || !validSegment(fileID) {
		return false
	}
	key := userPrefix(userID) + fileID

	if _, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(key)}); err != nil {
		if !isS3NotFound(err) {
			slog.Warn("storage: head before delete", "provider", ProviderS3, "key", key, "error", err)
		}
		return false
	}
	if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(key)}); err != nil {
		slog.Error("storage: delete object", "provider", ProviderS3, "key", key, "error", wrap(ErrDeleteFailed, ProviderS3, err))
		return false
	}
	return true
}

func (p *S3Provider) FileInfo(ctx context.Context, userID, fileID string) (*FileRecord, error) {
	if !p.available {
		return nil, ErrProviderUnavailable
	}
	if !validSegment(fileID) {
		return nil, nil
	}
	key := userPrefix(userID) + fileID

	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(key)})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("head object %q: %w", key, err)
	}
	return &FileRecord{
		ID:          fileID,
		Name:        NameFromID(fileID),
		Size:        aws.ToInt64(out.ContentLength),
		Provider:    ProviderS3,
		UploadedAt:  aws.ToTime(out.LastModified).UTC(),
		DownloadURL: p.downloadURL(ctx, key),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (p *S3Provider) ListFiles(ctx context.Context, userID string) ([]FileRecord, error) {
	if !p.available {
		return nil, ErrProviderUnavailable
	}
	prefix := userPrefix(userID)

	var files []FileRecord
	pager := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			fileID := strings.TrimPrefix(key, prefix)
			if fileID == "" {
				continue
			}
			files = append(files, FileRecord{
				ID:          fileID,
				Name:        NameFromID(fileID),
				Size:        aws.ToInt64(obj.Size),
				Provider:    ProviderS3,
				UploadedAt:  aws.ToTime(obj.LastModified).UTC(),
				DownloadURL: p.downloadURL(ctx, key),
			})
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files, nil
}

func (p *S3Provider) QuotaUsage(ctx context.Context, userID string) (float64, float64, error) {
	files, err := p.ListFiles(ctx, userID)
	if err != nil {
		return 0, p.quotaMB, err
	}
	return sumSizes(files), p.quotaMB, nil
}

// downloadURL presigns a GET for key, falling back to the direct object URL.
func (p *S3Provider) downloadURL(ctx context.Context, key string) string {
	req, err := p.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = p.presignExpiry
	})
	if err != nil {
		slog.Warn("storage: presign failed, using direct url", "key", key, "error", err)
		return p.directBase + "/" + key
	}
	return req.URL
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}
