package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the generation service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"generation-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"GENERATION_API_PORT" envDefault:"8290"`
	LogLevel        string        `env:"GENERATION_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"GENERATION_LOG_FORMAT" envDefault:"json"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Public base URL of this service, used to build the webhook callback
	// address handed to the provider and to the FFmpeg collaborator.
	PublicBaseURL string `env:"GENERATION_PUBLIC_BASE_URL,notEmpty"`

	// Database
	DBPostgresqlWriteDSN string        `env:"DB_POSTGRESQL_WRITE_DSN,notEmpty"`
	DBMaxIdleConns       int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns       int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Provider (FAL) API
	FalAPIKey           string        `env:"FAL_API_KEY"`
	FalQueueBaseURL     string        `env:"FAL_QUEUE_BASE_URL" envDefault:"https://queue.fal.run"`
	FalSyncBaseURL      string        `env:"FAL_SYNC_BASE_URL" envDefault:"https://fal.run"`
	FalJWKSURL          string        `env:"FAL_JWKS_URL" envDefault:"https://rest.alpha.fal.ai/.well-known/jwks.json"`
	FalRequestTimeout   time.Duration `env:"FAL_REQUEST_TIMEOUT" envDefault:"30s"`
	WebhookMaxSkew      time.Duration `env:"FAL_WEBHOOK_MAX_SKEW" envDefault:"300s"`
	WebhookDedupTTL     time.Duration `env:"FAL_WEBHOOK_DEDUP_TTL" envDefault:"60s"`
	JWKSCacheTTL        time.Duration `env:"FAL_JWKS_CACHE_TTL" envDefault:"24h"`
	SignatureBypassList []string      `env:"FAL_SIGNATURE_BYPASS_MODELS" envSeparator:"," envDefault:"fal-ai/flux-kontext-lora/text-to-image,fal-ai/flux-kontext/dev"`

	// Storage Backend Selection
	StorageBackend string `env:"MEDIA_STORAGE_BACKEND" envDefault:"s3"` // Options: "s3" or "local"

	// Local Storage Configuration
	LocalStoragePath    string `env:"MEDIA_LOCAL_STORAGE_PATH"`
	LocalStorageBaseURL string `env:"MEDIA_LOCAL_STORAGE_BASE_URL"`

	// S3 Storage Configuration
	S3Endpoint       string `env:"MEDIA_S3_ENDPOINT"`
	S3PublicEndpoint string `env:"MEDIA_S3_PUBLIC_ENDPOINT"`
	S3Region         string `env:"MEDIA_S3_REGION" envDefault:"us-west-2"`
	S3Bucket         string `env:"MEDIA_S3_BUCKET" envDefault:"user-files"`
	S3AccessKeyID    string `env:"MEDIA_S3_ACCESS_KEY_ID"`
	S3SecretKey      string `env:"MEDIA_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle   bool   `env:"MEDIA_S3_USE_PATH_STYLE" envDefault:"true"`

	// Media Materialization
	MaxMediaBytes      int64         `env:"MEDIA_MAX_BYTES" envDefault:"209715200"`
	RemoteFetchTimeout time.Duration `env:"MEDIA_REMOTE_FETCH_TIMEOUT" envDefault:"60s"`

	// FFmpeg collaborator
	FFmpegServiceURL       string        `env:"FFMPEG_SERVICE_URL"`
	EnableFFmpegProcessing bool          `env:"ENABLE_FFMPEG_PROCESSING" envDefault:"false"`
	UseEdgeEndpoints       bool          `env:"USE_EDGE_FUNCTION_ENDPOINTS" envDefault:"false"`
	FFmpegServiceToken     string        `env:"FFMPEG_SERVICE_TOKEN"`
	FFmpegRequestTimeout   time.Duration `env:"FFMPEG_REQUEST_TIMEOUT" envDefault:"15s"`

	// Authentication for user-facing endpoints
	AuthEnabled  bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuer   string `env:"AUTH_ISSUER"`
	AuthAudience string `env:"AUTH_AUDIENCE"`
	AuthJWKSURL  string `env:"AUTH_JWKS_URL"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.S3AccessKeyID = strings.TrimSpace(cfg.S3AccessKeyID)
	cfg.S3SecretKey = strings.TrimSpace(cfg.S3SecretKey)
	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)
	cfg.S3PublicEndpoint = strings.TrimSpace(cfg.S3PublicEndpoint)
	cfg.FFmpegServiceURL = strings.TrimRight(strings.TrimSpace(cfg.FFmpegServiceURL), "/")
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")

	if cfg.MaxMediaBytes <= 0 {
		cfg.MaxMediaBytes = 200 * 1024 * 1024
	}
	if cfg.AuthEnabled {
		if strings.TrimSpace(cfg.AuthIssuer) == "" {
			return nil, fmt.Errorf("AUTH_ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
			return nil, fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ENABLED is true")
		}
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// WebhookCallbackURL is the address the provider invokes on completion.
func (c *Config) WebhookCallbackURL() string {
	return c.PublicBaseURL + "/v1/webhooks/fal"
}

// FFmpegEnabled reports whether post-processing dispatch is active.
func (c *Config) FFmpegEnabled() bool {
	return c.EnableFFmpegProcessing && c.FFmpegServiceURL != ""
}

// IsLocalStorage returns true if local storage backend is configured.
func (c *Config) IsLocalStorage() bool {
	return strings.ToLower(strings.TrimSpace(c.StorageBackend)) == "local"
}

// IsS3Storage returns true if S3 storage backend is configured.
func (c *Config) IsS3Storage() bool {
	backend := strings.ToLower(strings.TrimSpace(c.StorageBackend))
	return backend == "" || backend == "s3"
}
