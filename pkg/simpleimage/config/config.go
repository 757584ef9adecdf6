package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/objectkey"
	"github.com/tendant/simple-image/pkg/simpleimage/reconcile"
)

// Backend names
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseBadger   = "badger"

	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:        "8080",
		Environment: "development",
		Database: DatabaseConfig{
			Type:        DatabaseMemory,
			Table:       "image_records",
			BadgerPath:  "./data/badger",
			AutoMigrate: true,
		},
		Storage: StorageConfig{
			Type:    StorageMemory,
			BaseDir: "./data/images",
			S3: S3Config{
				Region:       "us-east-1",
				SSEAlgorithm: "AES256",
			},
		},
		Presign: PresignConfig{
			PathPrefix:            "/blobs",
			DefaultExpiresSeconds: int(simpleimage.DefaultExpires / time.Second),
			MaxExpiresSeconds:     int(simpleimage.MaxExpires / time.Second),
		},
		Limits: LimitsConfig{
			MaxUploadBytes:   simpleimage.DefaultMaxUploadBytes,
			AdapterTimeout:   simpleimage.DefaultAdapterTimeout,
			MaxQueryAttempts: simpleimage.DefaultMaxQueryAttempts,
		},
		Reconcile: ReconcileConfig{
			Interval:   5 * time.Minute,
			MaxPending: reconcile.DefaultCollectorCapacity,
		},
		KeyStrategy:        "owner",
		EnableEventLogging: true,
		EnableMetrics:      true,
	}
}

// Config represents the configuration of the image service and its stores.
// Fields carry cleanenv tags for both environment variables and YAML files.
type Config struct {
	Port        string `yaml:"port" env:"PORT" env-description:"HTTP listen port"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-description:"development, production or testing"`

	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Presign   PresignConfig   `yaml:"presign"`
	Limits    LimitsConfig    `yaml:"limits"`
	Reconcile ReconcileConfig `yaml:"reconcile"`

	KeyStrategy        string `yaml:"key_strategy" env:"OBJECT_KEY_STRATEGY" env-description:"owner or sharded"`
	EnableEventLogging bool   `yaml:"event_logging" env:"ENABLE_EVENT_LOGGING" env-description:"log lifecycle events"`
	EnableMetrics      bool   `yaml:"metrics" env:"ENABLE_METRICS" env-description:"export Prometheus metrics"`
}

// DatabaseConfig selects the metadata store
type DatabaseConfig struct {
	Type        string `yaml:"type" env:"DATABASE_TYPE" env-description:"memory, postgres or badger"`
	URL         string `yaml:"url" env:"DATABASE_URL" env-description:"postgres connection string"`
	Schema      string `yaml:"schema" env:"DATABASE_SCHEMA" env-description:"postgres search_path"`
	Table       string `yaml:"table" env:"DATABASE_TABLE" env-description:"postgres table name"`
	BadgerPath  string `yaml:"badger_path" env:"BADGER_PATH" env-description:"badger data directory"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE" env-description:"create the postgres table on start"`
}

// StorageConfig selects the object store
type StorageConfig struct {
	Type    string   `yaml:"type" env:"STORAGE_TYPE" env-description:"memory, fs or s3"`
	BaseDir string   `yaml:"base_dir" env:"STORAGE_BASE_DIR" env-description:"filesystem storage root"`
	S3      S3Config `yaml:"s3"`
}

// S3Config mirrors the S3 backend settings
type S3Config struct {
	Endpoint               string `yaml:"endpoint" env:"AWS_S3_ENDPOINT"`
	AccessKeyID            string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey        string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Bucket                 string `yaml:"bucket" env:"AWS_S3_BUCKET"`
	Region                 string `yaml:"region" env:"AWS_S3_REGION"`
	UsePathStyle           bool   `yaml:"use_path_style" env:"AWS_S3_USE_PATH_STYLE"`
	EnableSSE              bool   `yaml:"enable_sse" env:"AWS_S3_ENABLE_SSE"`
	SSEAlgorithm           string `yaml:"sse_algorithm" env:"AWS_S3_SSE_ALGORITHM"`
	SSEKMSKeyID            string `yaml:"sse_kms_key_id" env:"AWS_S3_SSE_KMS_KEY_ID"`
	CreateBucketIfNotExist bool   `yaml:"create_bucket" env:"AWS_S3_CREATE_BUCKET"`
}

// PresignConfig controls access descriptors. SecretKey enables HMAC
// signing for backends that cannot sign URLs themselves.
type PresignConfig struct {
	SecretKey             string `yaml:"secret_key" env:"PRESIGN_SECRET_KEY" env-description:"HMAC key for memory/fs download URLs"`
	BaseURL               string `yaml:"base_url" env:"PRESIGN_BASE_URL" env-description:"scheme and host prefixed to download URLs"`
	PathPrefix            string `yaml:"path_prefix" env:"PRESIGN_PATH_PREFIX"`
	DefaultExpiresSeconds int    `yaml:"default_expires_seconds" env:"PRESIGN_DEFAULT_EXPIRES"`
	MaxExpiresSeconds     int    `yaml:"max_expires_seconds" env:"PRESIGN_MAX_EXPIRES"`
}

// LimitsConfig bounds uploads and adapter calls
type LimitsConfig struct {
	MaxUploadBytes   int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	AdapterTimeout   time.Duration `yaml:"adapter_timeout" env:"ADAPTER_TIMEOUT"`
	MaxQueryAttempts int           `yaml:"max_query_attempts" env:"MAX_QUERY_ATTEMPTS"`
}

// ReconcileConfig controls the background sweep of reported orphans.
// An Interval of zero disables the sweep.
type ReconcileConfig struct {
	Interval           time.Duration `yaml:"interval" env:"RECONCILE_INTERVAL" env-description:"orphan sweep interval, 0 disables"`
	RemoveStaleRecords bool          `yaml:"remove_stale_records" env:"RECONCILE_REMOVE_STALE" env-description:"delete records whose object is missing"`
	MaxPending         int           `yaml:"max_pending" env:"RECONCILE_MAX_PENDING" env-description:"orphans held between sweeps"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Database.Type {
	case DatabaseMemory:
	case DatabasePostgres:
		if c.Database.URL == "" {
			return errors.New("database url is required when using postgres")
		}
	case DatabaseBadger:
		if c.Database.BadgerPath == "" {
			return errors.New("badger path is required when using badger")
		}
	default:
		return fmt.Errorf("database type must be 'memory', 'postgres' or 'badger', got: %s", c.Database.Type)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageFS:
		if c.Storage.BaseDir == "" {
			return errors.New("storage base dir is required when using fs")
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("s3 bucket is required when using s3")
		}
	default:
		return fmt.Errorf("storage type must be 'memory', 'fs' or 's3', got: %s", c.Storage.Type)
	}

	if c.Presign.DefaultExpiresSeconds <= 0 {
		return errors.New("presign default expiry must be positive")
	}
	if c.Presign.MaxExpiresSeconds < c.Presign.DefaultExpiresSeconds {
		return errors.New("presign max expiry must not be less than the default")
	}
	if c.Limits.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	if c.Limits.AdapterTimeout <= 0 {
		return errors.New("adapter timeout must be positive")
	}
	if c.Limits.MaxQueryAttempts <= 0 {
		return errors.New("max query attempts must be positive")
	}
	if c.Reconcile.Interval < 0 {
		return errors.New("reconcile interval must not be negative")
	}
	if c.Reconcile.MaxPending <= 0 {
		return errors.New("reconcile max pending must be positive")
	}
	if _, err := objectkey.ByName(c.KeyStrategy); err != nil {
		return err
	}
	return nil
}

// SigningEnabled reports whether Build will produce a URL signer
func (c *Config) SigningEnabled() bool {
	return c.Storage.Type == StorageS3 || c.Presign.SecretKey != ""
}

// UsesHMACSigner reports whether download URLs are served by this process
func (c *Config) UsesHMACSigner() bool {
	return c.Storage.Type != StorageS3 && c.Presign.SecretKey != ""
}
