package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithMemoryDatabase keeps records in process memory
func WithMemoryDatabase() Option {
	return func(c *Config) error {
		c.Database.Type = DatabaseMemory
		c.Database.URL = ""
		return nil
	}
}

// WithPostgres stores records in PostgreSQL
func WithPostgres(url, table string) Option {
	return func(c *Config) error {
		if url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.Database.Type = DatabasePostgres
		c.Database.URL = url
		if table != "" {
			c.Database.Table = table
		}
		return nil
	}
}

// WithDatabaseSchema sets the postgres search_path
func WithDatabaseSchema(schema string) Option {
	return func(c *Config) error {
		c.Database.Schema = schema
		return nil
	}
}

// WithBadger stores records in an embedded badger database at path
func WithBadger(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return fmt.Errorf("badger path cannot be empty")
		}
		c.Database.Type = DatabaseBadger
		c.Database.BadgerPath = path
		return nil
	}
}

// WithMemoryStorage keeps objects in process memory
func WithMemoryStorage() Option {
	return func(c *Config) error {
		c.Storage.Type = StorageMemory
		return nil
	}
}

// WithFilesystemStorage stores objects under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *Config) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage.Type = StorageFS
		c.Storage.BaseDir = baseDir
		return nil
	}
}

// WithS3Storage stores objects in S3 or an S3-compatible service
func WithS3Storage(s3 S3Config) Option {
	return func(c *Config) error {
		if s3.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = c.Storage.S3.Region
		}
		if s3.SSEAlgorithm == "" {
			s3.SSEAlgorithm = c.Storage.S3.SSEAlgorithm
		}
		c.Storage.Type = StorageS3
		c.Storage.S3 = s3
		return nil
	}
}

// WithPresignSecret enables HMAC download URLs for memory and fs storage
func WithPresignSecret(secretKey, baseURL string) Option {
	return func(c *Config) error {
		if secretKey == "" {
			return fmt.Errorf("presign secret key cannot be empty")
		}
		c.Presign.SecretKey = secretKey
		c.Presign.BaseURL = baseURL
		return nil
	}
}

// WithExpiry sets the default and maximum access descriptor lifetime
func WithExpiry(defaultSeconds, maxSeconds int) Option {
	return func(c *Config) error {
		if defaultSeconds <= 0 || maxSeconds < defaultSeconds {
			return fmt.Errorf("invalid expiry policy: default %d, max %d", defaultSeconds, maxSeconds)
		}
		c.Presign.DefaultExpiresSeconds = defaultSeconds
		c.Presign.MaxExpiresSeconds = maxSeconds
		return nil
	}
}

// WithMaxUploadBytes bounds the decoded upload size
func WithMaxUploadBytes(n int64) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("max upload bytes must be positive, got: %d", n)
		}
		c.Limits.MaxUploadBytes = n
		return nil
	}
}

// WithAdapterTimeout bounds every store call
func WithAdapterTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("adapter timeout must be positive, got: %s", d)
		}
		c.Limits.AdapterTimeout = d
		return nil
	}
}

// WithReconcile sets the orphan sweep interval and whether stale records
// are removed. Zero disables the sweep.
func WithReconcile(interval time.Duration, removeStaleRecords bool) Option {
	return func(c *Config) error {
		if interval < 0 {
			return fmt.Errorf("reconcile interval must not be negative, got: %s", interval)
		}
		c.Reconcile.Interval = interval
		c.Reconcile.RemoveStaleRecords = removeStaleRecords
		return nil
	}
}

// WithKeyStrategy selects the object key layout ("owner" or "sharded")
func WithKeyStrategy(name string) Option {
	return func(c *Config) error {
		c.KeyStrategy = name
		return nil
	}
}

// WithEventLogging toggles the zap event sink
func WithEventLogging(enabled bool) Option {
	return func(c *Config) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMetrics toggles Prometheus metrics
func WithMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.EnableMetrics = enabled
		return nil
	}
}
