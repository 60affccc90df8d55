// Package config loads application configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port        string
	AppEnv      string
	JWTSecret   string
	JWTTTL      time.Duration
	SentryDSN   string
	CORSOrigins []string

	// Users database: "pgx" (PostgreSQL) or "sqlite"
	DBDriver    string
	DatabaseURL string

	// Cloud storage
	StorageProviders []string // priority order, e.g. minio,s3,local
	LedgerPath       string
	AdBonusMB        int
	AdsMax           int
	MaxUploadMB      int

	// Remote store A (MinIO or any S3-compatible endpoint reachable through minio-go)
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	MinioPublicBase string // browser-accessible base URL, e.g. "http://localhost:9000/infinityhole"
	MinioQuotaMB    int

	// Remote store B (AWS S3 or compatible through aws-sdk-go-v2)
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string // optional, for non-AWS providers
	S3PresignExpiry time.Duration
	S3QuotaMB       int

	// Local filesystem fallback
	LocalStorageDir string
	LocalPublicPath string
	LocalQuotaMB    int

	// Media pipeline
	DownloadDir     string
	MaxDownloadMB   int
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
	AllowedDomains  []string
	YtDlpPath       string
	FFmpegPath      string
	MediaTimeout    time.Duration
}

// defaultDomains mirrors the hosts the downloader has been exercised against.
var defaultDomains = []string{
	"youtube.com", "youtu.be", "instagram.com", "tiktok.com", "twitter.com", "x.com",
	"facebook.com", "fb.watch", "twitch.tv", "vimeo.com", "dailymotion.com",
	"reddit.com", "redd.it", "rumble.com", "odysee.com", "archive.org", "streamable.com",
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	return &Config{
		Port:        getEnv("PORT", "8000"),
		AppEnv:      getEnv("APP_ENV", "development"),
		JWTSecret:   getEnv("JWT_SECRET", "change_me_in_production"),
		JWTTTL:      getEnvDuration("JWT_TTL", 7*24*time.Hour),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		DBDriver:    getEnv("DB_DRIVER", "sqlite"),
		DatabaseURL: getEnv("DATABASE_URL", "./data/infinityhole.db"),

		StorageProviders: getEnvList("STORAGE_PROVIDERS", []string{"minio", "s3", "local"}),
		LedgerPath:       getEnv("LEDGER_PATH", "./data/user_storage.json"),
		AdBonusMB:        getEnvInt("AD_BONUS_MB", 10),
		AdsMax:           getEnvInt("ADS_MAX", 5),
		MaxUploadMB:      getEnvInt("MAX_UPLOAD_MB", 500),

		MinioEndpoint:   getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getEnv("MINIO_BUCKET", "infinityhole"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		MinioPublicBase: getEnv("MINIO_PUBLIC_BASE", "http://localhost:9000/infinityhole"),
		MinioQuotaMB:    getEnvInt("MINIO_QUOTA_MB", 100),

		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3PresignExpiry: getEnvDuration("S3_PRESIGN_EXPIRY", 168*time.Hour),
		S3QuotaMB:       getEnvInt("S3_QUOTA_MB", 25000),

		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", "./cloud_storage"),
		LocalPublicPath: getEnv("LOCAL_PUBLIC_PATH", "/cloud_storage"),
		LocalQuotaMB:    getEnvInt("LOCAL_QUOTA_MB", 1000),

		DownloadDir:     getEnv("DOWNLOAD_DIR", "./downloads"),
		MaxDownloadMB:   getEnvInt("MAX_DOWNLOAD_MB", 500),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		CleanupMaxAge:   getEnvDuration("CLEANUP_MAX_AGE", 2*time.Hour),
		AllowedDomains:  getEnvList("ALLOWED_DOMAINS", defaultDomains),
		YtDlpPath:       getEnv("YTDLP_PATH", "yt-dlp"),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		MediaTimeout:    getEnvDuration("MEDIA_TIMEOUT", 10*time.Minute),
	}
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
