// Package presets builds ready-to-use image stacks for common situations.
package presets

import (
	"context"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/tendant/simple-image/pkg/simpleimage/config"
)

// DevelopmentSecret signs presigned URLs issued by NewDevelopment.
const DevelopmentSecret = "simple-image-development-secret"

// NewDevelopment builds a stack for local work: an in-memory metadata
// repository, images on disk under ./dev-data, HMAC presigned URLs and
// event logging.
//
// The returned cleanup closes the stores and removes the storage directory.
//
// Example:
//
//	comp, cleanup, err := presets.NewDevelopment(ctx, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(ctx context.Context, logger *zap.Logger, opts ...DevelopmentOption) (*config.Components, func(), error) {
	dev := &devConfig{
		storageDir: "./dev-data",
		baseURL:    "http://localhost:8080",
	}
	for _, opt := range opts {
		opt(dev)
	}

	cfg, err := config.Load(
		config.WithEnvironment("development"),
		config.WithMemoryDatabase(),
		config.WithFilesystemStorage(dev.storageDir),
		config.WithPresignSecret(DevelopmentSecret, dev.baseURL),
		config.WithEventLogging(true),
		config.WithMetrics(false),
	)
	if err != nil {
		return nil, nil, err
	}

	comp, err := cfg.Build(ctx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build development stack: %w", err)
	}
	cleanup := func() {
		_ = comp.Close()
		_ = os.RemoveAll(dev.storageDir)
	}
	return comp, cleanup, nil
}

// NewTesting builds an isolated in-memory stack that is closed when t
// completes. Pass WithTestSigning to enable presigned URLs.
func NewTesting(t testing.TB, opts ...TestingOption) *config.Components {
	t.Helper()
	tc := &testConfig{}
	for _, opt := range opts {
		opt(tc)
	}

	options := []config.Option{
		config.WithEnvironment("testing"),
		config.WithMemoryDatabase(),
		config.WithMemoryStorage(),
		config.WithMetrics(false),
	}
	if tc.secret != "" {
		options = append(options, config.WithPresignSecret(tc.secret, ""))
	}
	cfg, err := config.Load(options...)
	if err != nil {
		t.Fatalf("failed to load test configuration: %v", err)
	}

	comp, err := cfg.Build(context.Background(), tc.logger)
	if err != nil {
		t.Fatalf("failed to build test stack: %v", err)
	}
	t.Cleanup(func() { _ = comp.Close() })
	return comp
}

// NewProduction builds a stack from the environment and refuses
// configurations that would lose data on restart.
func NewProduction(ctx context.Context, logger *zap.Logger) (*config.Components, *config.Config, error) {
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Type == config.DatabaseMemory {
		return nil, nil, fmt.Errorf("production preset requires DATABASE_TYPE=postgres or badger")
	}
	if cfg.Storage.Type == config.StorageMemory {
		return nil, nil, fmt.Errorf("production preset requires STORAGE_TYPE=s3 or fs")
	}

	comp, err := cfg.Build(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	return comp, cfg, nil
}

type devConfig struct {
	storageDir string
	baseURL    string
}

type testConfig struct {
	secret string
	logger *zap.Logger
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevBaseURL sets the origin presigned URLs point at
func WithDevBaseURL(baseURL string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.baseURL = baseURL
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestSigning enables HMAC presigned URLs with secret
func WithTestSigning(secret string) TestingOption {
	return func(cfg *testConfig) {
		cfg.secret = secret
	}
}

// WithTestLogger sets the logger passed to the stack
func WithTestLogger(logger *zap.Logger) TestingOption {
	return func(cfg *testConfig) {
		cfg.logger = logger
	}
}
