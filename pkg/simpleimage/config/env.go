package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides. Only variables that are
// set replace the current value.
//
// Server:
//
//	PORT, ENVIRONMENT
//
// Metadata store:
//
//	DATABASE_TYPE (memory|postgres|badger), DATABASE_URL, DATABASE_SCHEMA,
//	DATABASE_TABLE, BADGER_PATH, DATABASE_AUTO_MIGRATE
//
// Object store:
//
//	STORAGE_TYPE (memory|fs|s3), STORAGE_BASE_DIR, AWS_S3_ENDPOINT,
//	AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_S3_BUCKET, AWS_S3_REGION,
//	AWS_S3_USE_PATH_STYLE, AWS_S3_ENABLE_SSE, AWS_S3_SSE_ALGORITHM,
//	AWS_S3_SSE_KMS_KEY_ID, AWS_S3_CREATE_BUCKET
//
// Access descriptors and limits:
//
//	PRESIGN_SECRET_KEY, PRESIGN_BASE_URL, PRESIGN_PATH_PREFIX,
//	PRESIGN_DEFAULT_EXPIRES, PRESIGN_MAX_EXPIRES, MAX_UPLOAD_BYTES,
//	ADAPTER_TIMEOUT, MAX_QUERY_ATTEMPTS, OBJECT_KEY_STRATEGY
//
// Orphan sweep:
//
//	RECONCILE_INTERVAL, RECONCILE_REMOVE_STALE, RECONCILE_MAX_PENDING
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithConfigFile reads a YAML (or JSON/TOML, by extension) file. Values
// not present in the file keep their current value; environment variables
// override file values.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// Description lists the supported environment variables
func Description() (string, error) {
	cfg := defaults()
	header := "Environment variables:"
	return cleanenv.GetDescription(&cfg, &header)
}
