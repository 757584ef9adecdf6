package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/metrics"
	"github.com/tendant/simple-image/pkg/simpleimage/objectkey"
	"github.com/tendant/simple-image/pkg/simpleimage/presigned"
	"github.com/tendant/simple-image/pkg/simpleimage/reconcile"
	badgerrepo "github.com/tendant/simple-image/pkg/simpleimage/repo/badger"
	"github.com/tendant/simple-image/pkg/simpleimage/repo/memory"
	repopg "github.com/tendant/simple-image/pkg/simpleimage/repo/postgres"
	fsstorage "github.com/tendant/simple-image/pkg/simpleimage/storage/fs"
	memorystorage "github.com/tendant/simple-image/pkg/simpleimage/storage/memory"
	s3storage "github.com/tendant/simple-image/pkg/simpleimage/storage/s3"
)

// Components holds everything Build wires together
type Components struct {
	Service    simpleimage.Service
	Repository simpleimage.Repository
	BlobStore  simpleimage.BlobStore
	// Presigner is set when download URLs are HMAC-signed and must be
	// served by this process.
	Presigner  *presigned.Signer
	Metrics    *metrics.Metrics
	Collector  *reconcile.Collector
	Reconciler *reconcile.Reconciler

	closers []func() error
}

// Close releases database handles opened by Build
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates the stores and the Service described by the configuration.
// Metrics register with the default Prometheus registerer.
func (c *Config) Build(ctx context.Context, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	comp := &Components{}

	repo, err := c.buildRepository(ctx, comp)
	if err != nil {
		_ = comp.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	comp.Repository = repo

	store, err := c.buildBlobStore(ctx)
	if err != nil {
		_ = comp.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}
	comp.BlobStore = store

	keyGen, err := objectkey.ByName(c.KeyStrategy)
	if err != nil {
		_ = comp.Close()
		return nil, err
	}

	comp.Collector = reconcile.NewCollector(reconcile.WithCapacity(c.Reconcile.MaxPending))
	sinks := []simpleimage.EventSink{comp.Collector}
	if c.EnableEventLogging {
		sinks = append(sinks, simpleimage.NewLoggingEventSink(logger))
	}
	if c.EnableMetrics {
		m, err := metrics.New(metrics.DefaultNamespace, prometheus.DefaultRegisterer)
		if err != nil {
			_ = comp.Close()
			return nil, err
		}
		comp.Metrics = m
		sinks = append(sinks, m)
	}
	sink := simpleimage.NewMultiEventSink(sinks...)

	options := []simpleimage.Option{
		simpleimage.WithRepository(repo),
		simpleimage.WithBlobStore(store),
		simpleimage.WithKeyGenerator(keyGen),
		simpleimage.WithEventSink(sink),
		simpleimage.WithLogger(logger),
		simpleimage.WithAdapterTimeout(c.Limits.AdapterTimeout),
		simpleimage.WithMaxUploadBytes(c.Limits.MaxUploadBytes),
		simpleimage.WithMaxQueryAttempts(c.Limits.MaxQueryAttempts),
		simpleimage.WithExpiryPolicy(
			time.Duration(c.Presign.DefaultExpiresSeconds)*time.Second,
			time.Duration(c.Presign.MaxExpiresSeconds)*time.Second),
	}

	switch {
	case c.Storage.Type == StorageS3:
		options = append(options, simpleimage.WithURLSigner(store.(simpleimage.URLSigner)))
	case c.Presign.SecretKey != "":
		comp.Presigner = presigned.New(
			presigned.WithSecretKey(c.Presign.SecretKey),
			presigned.WithBaseURL(c.Presign.BaseURL),
			presigned.WithPathPrefix(c.Presign.PathPrefix),
		)
		options = append(options, simpleimage.WithURLSigner(comp.Presigner))
	default:
		logger.Warn("no URL signer configured, presigned access is disabled",
			zap.String("storage", c.Storage.Type))
	}

	svc, err := simpleimage.New(options...)
	if err != nil {
		_ = comp.Close()
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	comp.Service = svc

	comp.Reconciler, err = reconcile.New(repo, store,
		reconcile.WithLogger(logger),
		reconcile.WithEventSink(sink))
	if err != nil {
		_ = comp.Close()
		return nil, err
	}
	return comp, nil
}

// buildRepository creates a Repository based on the configuration
func (c *Config) buildRepository(ctx context.Context, comp *Components) (simpleimage.Repository, error) {
	switch c.Database.Type {
	case DatabaseMemory:
		return memory.New(), nil

	case DatabaseBadger:
		repo, err := badgerrepo.Open(badgerrepo.Config{Path: c.Database.BadgerPath})
		if err != nil {
			return nil, err
		}
		comp.closers = append(comp.closers, repo.Close)
		return repo, nil

	case DatabasePostgres:
		pool, err := c.newPool(ctx)
		if err != nil {
			return nil, err
		}
		comp.closers = append(comp.closers, func() error { pool.Close(); return nil })
		repo := repopg.NewWithPool(pool, repopg.WithTable(c.Database.Table))
		if c.Database.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
}

func (c *Config) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema := c.Database.Schema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.Limits.AdapterTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildBlobStore creates a BlobStore based on the configuration
func (c *Config) buildBlobStore(ctx context.Context) (simpleimage.BlobStore, error) {
	switch c.Storage.Type {
	case StorageMemory:
		return memorystorage.New(), nil

	case StorageFS:
		return fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})

	case StorageS3:
		s3 := c.Storage.S3
		return s3storage.New(ctx, s3storage.Config{
			Region:                 s3.Region,
			Bucket:                 s3.Bucket,
			AccessKeyID:            s3.AccessKeyID,
			SecretAccessKey:        s3.SecretAccessKey,
			Endpoint:               s3.Endpoint,
			UsePathStyle:           s3.UsePathStyle,
			EnableSSE:              s3.EnableSSE,
			SSEAlgorithm:           s3.SSEAlgorithm,
			SSEKMSKeyID:            s3.SSEKMSKeyID,
			CreateBucketIfNotExist: s3.CreateBucketIfNotExist,
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}
}
