package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"go.uber.org/zap"

	"github.com/tendant/simple-image/pkg/logger"
	"github.com/tendant/simple-image/pkg/simpleimage/api"
	"github.com/tendant/simple-image/pkg/simpleimage/config"
	"github.com/tendant/simple-image/pkg/simpleimage/metrics"
	"github.com/tendant/simple-image/pkg/simpleimage/presigned"
	"github.com/tendant/simple-image/pkg/simpleimage/reconcile"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "simple-image: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comp, err := cfg.Build(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := comp.Close(); err != nil {
			log.Error("failed to close stores", zap.Error(err))
		}
	}()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	sweepDone := startReconciler(sweepCtx, comp, cfg, log)
	defer func() {
		cancelSweep()
		<-sweepDone
	}()

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	mountRoutes(server.R, comp, cfg, log)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.R,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("simple-image server starting",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Environment),
			zap.String("database", cfg.Database.Type),
			zap.String("storage", cfg.Storage.Type),
			zap.Bool("signing", comp.Presigner != nil || cfg.Storage.Type == config.StorageS3))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

// startReconciler sweeps orphans reported by the service in the background.
// The returned channel is closed once the sweep loop has stopped.
func startReconciler(ctx context.Context, comp *config.Components, cfg *config.Config, log *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if cfg.Reconcile.Interval <= 0 {
		log.Info("orphan sweep disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		log.Info("orphan sweep started",
			zap.Duration("interval", cfg.Reconcile.Interval),
			zap.Bool("remove_stale_records", cfg.Reconcile.RemoveStaleRecords))
		err := comp.Reconciler.Run(ctx, comp.Collector, cfg.Reconcile.Interval, reconcile.SweepOptions{
			RemoveStaleRecords: cfg.Reconcile.RemoveStaleRecords,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("orphan sweep stopped", zap.Error(err))
		}
	}()
	return done
}

// mountRoutes registers the image API, the signed blob endpoint and /metrics
func mountRoutes(r chi.Router, comp *config.Components, cfg *config.Config, log *zap.Logger) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(api.RequestLogger(log))
		if comp.Metrics != nil {
			r.Use(comp.Metrics.Middleware)
		}

		images := api.NewImageHandler(comp.Service,
			api.WithHandlerLogger(log),
			api.WithMaxBodyBytes(maxBodyBytes(cfg.Limits.MaxUploadBytes)))
		r.Mount("/api/v1/images", images.Routes())

		if comp.Presigner != nil {
			r.Handle(comp.Presigner.PathPrefix()+"/*", presigned.NewHandler(comp.Presigner, comp.BlobStore, log))
		}
	})

	if comp.Metrics != nil {
		r.Handle("/metrics", metrics.Handler(nil))
	}
}

// maxBodyBytes sizes the request body limit for a base64 JSON upload of
// maxUpload decoded bytes.
func maxBodyBytes(maxUpload int64) int64 {
	n := maxUpload/3*4 + 4 + 64<<10
	if n < api.DefaultMaxBodyBytes {
		return api.DefaultMaxBodyBytes
	}
	return n
}
