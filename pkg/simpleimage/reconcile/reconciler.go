// Package reconcile repairs the inconsistencies the lifecycle coordinator
// reports but never retries: objects left without a record after a failed
// upload, and records whose object is gone.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

const (
	defaultBatchSize   = 100
	defaultConcurrency = 8
)

// Reconciler checks orphans against both stores and removes what is safe
// to remove.
type Reconciler struct {
	repo   simpleimage.Repository
	store  simpleimage.BlobStore
	sink   simpleimage.EventSink
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEventSink receives stale records found by ScanOwner
func WithEventSink(sink simpleimage.EventSink) Option {
	return func(r *Reconciler) { r.sink = sink }
}

// New creates a Reconciler over the given stores
func New(repo simpleimage.Repository, store simpleimage.BlobStore, opts ...Option) (*Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	r := &Reconciler{
		repo:   repo,
		store:  store,
		sink:   simpleimage.NewNoopEventSink(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SweepOptions configures Sweep
type SweepOptions struct {
	// DryRun reports what would be removed without removing it
	DryRun bool
	// RemoveStaleRecords deletes records whose object is confirmed missing
	RemoveStaleRecords bool
}

// SweepResult contains statistics about a sweep
type SweepResult struct {
	ObjectsRemoved int
	RecordsRemoved int
	// Resolved counts orphans that were no longer inconsistent
	Resolved int
	// Skipped counts stale records left in place
	Skipped int
	// FailedIDs lists image ids whose check or removal failed
	FailedIDs []string
}

// Sweep re-checks each orphan and removes the dangling side. An object is
// only deleted when no record references it.
func (r *Reconciler) Sweep(ctx context.Context, orphans []simpleimage.Orphan, opts SweepOptions) (*SweepResult, error) {
	result := &SweepResult{}
	for _, orphan := range orphans {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		log := r.logger.With(
			zap.String("image_id", orphan.ImageID),
			zap.String("object_key", orphan.ObjectKey),
			zap.String("kind", string(orphan.Kind)))

		var err error
		switch orphan.Kind {
		case simpleimage.OrphanObject:
			err = r.sweepObject(ctx, orphan, opts, result)
		case simpleimage.OrphanRecord:
			err = r.sweepRecord(ctx, orphan, opts, result)
		default:
			err = fmt.Errorf("unknown orphan kind %q", orphan.Kind)
		}
		if err != nil {
			log.Error("reconcile failed", zap.Error(err))
			result.FailedIDs = append(result.FailedIDs, orphan.ImageID)
		}
	}
	return result, nil
}

// Run sweeps the collector's orphans every interval until ctx is done.
// Orphans whose sweep failed are handed back to the collector for the
// next tick.
func (r *Reconciler) Run(ctx context.Context, c *Collector, interval time.Duration, opts SweepOptions) error {
	if c == nil {
		return fmt.Errorf("collector is required")
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweepPending(ctx, c, opts)
		}
	}
}

func (r *Reconciler) sweepPending(ctx context.Context, c *Collector, opts SweepOptions) {
	orphans := c.Drain()
	if len(orphans) == 0 {
		return
	}
	result, err := r.Sweep(ctx, orphans, opts)
	if err != nil {
		// Sweep re-checks both stores, so requeueing handled orphans is safe
		r.logger.Warn("sweep interrupted", zap.Int("pending", len(orphans)), zap.Error(err))
		for _, orphan := range orphans {
			_ = c.OrphanDetected(ctx, orphan)
		}
		return
	}

	failed := make(map[string]bool, len(result.FailedIDs))
	for _, id := range result.FailedIDs {
		failed[id] = true
	}
	for _, orphan := range orphans {
		if failed[orphan.ImageID] {
			_ = c.OrphanDetected(ctx, orphan)
		}
	}

	r.logger.Info("sweep complete",
		zap.Int("pending", len(orphans)),
		zap.Int("objects_removed", result.ObjectsRemoved),
		zap.Int("records_removed", result.RecordsRemoved),
		zap.Int("resolved", result.Resolved),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.FailedIDs)),
		zap.Int64("dropped", c.Dropped()))
}

func (r *Reconciler) sweepObject(ctx context.Context, orphan simpleimage.Orphan, opts SweepOptions, result *SweepResult) error {
	record, err := r.repo.GetRecord(ctx, orphan.ImageID)
	switch {
	case err == nil && record.ObjectKey == orphan.ObjectKey:
		result.Resolved++
		return nil
	case err != nil && !errors.Is(err, simpleimage.ErrRecordNotFound):
		return fmt.Errorf("lookup record: %w", err)
	}

	if opts.DryRun {
		r.logger.Info("[DRY-RUN] would delete orphaned object", zap.String("object_key", orphan.ObjectKey))
		result.ObjectsRemoved++
		return nil
	}
	if err := r.store.Delete(ctx, orphan.ObjectKey); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	r.logger.Info("deleted orphaned object", zap.String("object_key", orphan.ObjectKey))
	result.ObjectsRemoved++
	return nil
}

func (r *Reconciler) sweepRecord(ctx context.Context, orphan simpleimage.Orphan, opts SweepOptions, result *SweepResult) error {
	record, err := r.repo.GetRecord(ctx, orphan.ImageID)
	if errors.Is(err, simpleimage.ErrRecordNotFound) {
		result.Resolved++
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup record: %w", err)
	}

	exists, err := r.store.Exists(ctx, record.ObjectKey)
	if err != nil {
		return fmt.Errorf("check object: %w", err)
	}
	if exists {
		result.Resolved++
		return nil
	}
	if !opts.RemoveStaleRecords {
		result.Skipped++
		return nil
	}
	if opts.DryRun {
		r.logger.Info("[DRY-RUN] would delete stale record", zap.String("image_id", record.ImageID))
		result.RecordsRemoved++
		return nil
	}
	if err := r.repo.DeleteRecord(ctx, record.ImageID); err != nil && !errors.Is(err, simpleimage.ErrRecordNotFound) {
		return fmt.Errorf("delete record: %w", err)
	}
	r.logger.Info("deleted stale record", zap.String("image_id", record.ImageID))
	result.RecordsRemoved++
	return nil
}

// ScanOptions configures ScanOwner
type ScanOptions struct {
	// BatchSize controls how many records are read per page (default: 100)
	BatchSize int
	// Concurrency bounds parallel existence checks (default: 8)
	Concurrency int
	// OnProgress is called after each page (optional)
	OnProgress func(scanned int64)
}

// ScanResult contains statistics about an owner scan
type ScanResult struct {
	TotalScanned int64
	// Stale lists records whose object is missing, in listing order
	Stale []simpleimage.Orphan
}

// ScanOwner walks every record of ownerID and checks that its object
// exists. Missing objects are returned and reported to the event sink.
func (r *Reconciler) ScanOwner(ctx context.Context, ownerID string, opts ScanOptions) (*ScanResult, error) {
	if ownerID == "" {
		return nil, &simpleimage.ValidationError{Field: "owner_id", Reason: "is required"}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	result := &ScanResult{Stale: []simpleimage.Orphan{}}
	var after *simpleimage.SortKey
	for {
		page, err := r.repo.QueryByOwner(ctx, simpleimage.OwnerQuery{
			OwnerID: ownerID,
			Limit:   opts.BatchSize,
			After:   after,
		})
		if err != nil {
			return result, fmt.Errorf("failed to list records: %w", err)
		}

		missing, err := r.checkObjects(ctx, page.Records, opts.Concurrency)
		if err != nil {
			return result, err
		}
		result.TotalScanned += int64(len(page.Records))
		for i, record := range page.Records {
			if !missing[i] {
				continue
			}
			orphan := simpleimage.Orphan{
				Kind:      simpleimage.OrphanRecord,
				ImageID:   record.ImageID,
				OwnerID:   record.OwnerID,
				ObjectKey: record.ObjectKey,
				Reason:    "object missing during scan",
				At:        r.now().UTC(),
			}
			result.Stale = append(result.Stale, orphan)
			if err := r.sink.OrphanDetected(ctx, orphan); err != nil {
				r.logger.Warn("event sink failed", zap.String("image_id", record.ImageID), zap.Error(err))
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalScanned)
		}
		if page.Next == nil {
			break
		}
		after = page.Next
	}
	return result, nil
}

// checkObjects reports, per record, whether its object is missing.
func (r *Reconciler) checkObjects(ctx context.Context, records []*simpleimage.ImageRecord, limit int) ([]bool, error) {
	missing := make([]bool, len(records))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, record := range records {
		g.Go(func() error {
			exists, err := r.store.Exists(ctx, record.ObjectKey)
			if err != nil {
				return fmt.Errorf("check object %s: %w", record.ObjectKey, err)
			}
			mu.Lock()
			missing[i] = !exists
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return missing, nil
}
