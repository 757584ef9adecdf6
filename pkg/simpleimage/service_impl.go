package simpleimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tendant/simple-image/pkg/simpleimage/objectkey"
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	signer     URLSigner
	access     *AccessDescriptorGenerator
	keyGen     KeyGenerator
	eventSink  EventSink
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string

	adapterTimeout   time.Duration
	maxUploadBytes   int64
	defaultExpires   time.Duration
	maxExpires       time.Duration
	maxQueryAttempts int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the object storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithURLSigner sets the signer used for access descriptors
func WithURLSigner(signer URLSigner) Option {
	return func(s *service) {
		s.signer = signer
	}
}

// WithKeyGenerator sets the object key strategy
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(s *service) {
		s.keyGen = gen
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *zap.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithIDGenerator overrides UUID generation for image IDs
func WithIDGenerator(newID func() string) Option {
	return func(s *service) {
		s.newID = newID
	}
}

// WithAdapterTimeout bounds every individual store call. Zero disables the bound.
func WithAdapterTimeout(d time.Duration) Option {
	return func(s *service) {
		s.adapterTimeout = d
	}
}

// WithMaxUploadBytes sets the largest accepted decoded payload
func WithMaxUploadBytes(n int64) Option {
	return func(s *service) {
		s.maxUploadBytes = n
	}
}

// WithExpiryPolicy sets the default and maximum access descriptor lifetimes
func WithExpiryPolicy(def, max time.Duration) Option {
	return func(s *service) {
		s.defaultExpires = def
		s.maxExpires = max
	}
}

// WithMaxQueryAttempts caps repository calls per filtered List
func WithMaxQueryAttempts(n int) Option {
	return func(s *service) {
		s.maxQueryAttempts = n
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:        NewNoopEventSink(),
		logger:           zap.NewNop(),
		now:              time.Now,
		newID:            func() string { return uuid.NewString() },
		adapterTimeout:   DefaultAdapterTimeout,
		maxUploadBytes:   DefaultMaxUploadBytes,
		defaultExpires:   DefaultExpires,
		maxExpires:       MaxExpires,
		maxQueryAttempts: DefaultMaxQueryAttempts,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.keyGen == nil {
		s.keyGen = objectkey.NewOwnerScopedGenerator()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.defaultExpires <= 0 || s.maxExpires <= 0 {
		return nil, fmt.Errorf("expiry policy must be positive")
	}
	if s.defaultExpires > s.maxExpires {
		return nil, fmt.Errorf("default expiry %s exceeds maximum %s", s.defaultExpires, s.maxExpires)
	}
	if s.maxQueryAttempts < 1 {
		s.maxQueryAttempts = 1
	}
	if s.signer != nil {
		s.access = NewAccessDescriptorGenerator(s.signer, s.now)
	}

	return s, nil
}

// adapterContext bounds a single store call.
func (s *service) adapterContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.adapterTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.adapterTimeout)
}

// Lifecycle operations

func (s *service) Upload(ctx context.Context, req UploadRequest) (*ImageRecord, error) {
	data, err := validateUpload(req, s.maxUploadBytes)
	if err != nil {
		return nil, err
	}

	imageID := s.newID()
	now := s.now().UTC().Truncate(time.Microsecond)
	record := &ImageRecord{
		ImageID:     imageID,
		OwnerID:     req.OwnerID,
		ObjectKey:   s.keyGen.GenerateKey(req.OwnerID, imageID, req.Filename),
		Filename:    req.Filename,
		ContentType: DetectContentType(req.Filename, data),
		SizeBytes:   int64(len(data)),
		Tags:        NormalizeTags(req.Tags),
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	log := s.logger.With(
		zap.String("image_id", record.ImageID),
		zap.String("owner_id", record.OwnerID),
		zap.String("object_key", record.ObjectKey),
	)

	putCtx, cancel := s.adapterContext(ctx)
	err = s.blobStore.Put(putCtx, record.ObjectKey, bytes.NewReader(data), PutOptions{
		ContentType: record.ContentType,
		Size:        record.SizeBytes,
		Metadata: map[string]string{
			"owner_id":          record.OwnerID,
			"image_id":          record.ImageID,
			"original_filename": record.Filename,
		},
	})
	cancel()
	if err != nil {
		log.Error("object write failed", zap.String("store", StoreObject), zap.Error(err))
		return nil, &StorageWriteError{
			Store:     StoreObject,
			ImageID:   record.ImageID,
			ObjectKey: record.ObjectKey,
			Err:       err,
		}
	}

	recCtx, cancel := s.adapterContext(ctx)
	err = s.repository.PutRecord(recCtx, record)
	cancel()
	if err != nil {
		log.Error("metadata write failed, object orphaned", zap.String("store", StoreMetadata), zap.Error(err))
		s.reportOrphan(ctx, Orphan{
			Kind:      OrphanObject,
			ImageID:   record.ImageID,
			OwnerID:   record.OwnerID,
			ObjectKey: record.ObjectKey,
			Reason:    "metadata write failed: " + err.Error(),
		})
		return nil, &PartialWriteError{
			ImageID:   record.ImageID,
			ObjectKey: record.ObjectKey,
			Err:       err,
		}
	}

	log.Debug("image stored", zap.Int64("size_bytes", record.SizeBytes))
	if err := s.eventSink.ImageUploaded(ctx, record); err != nil {
		log.Warn("event sink failed", zap.String("event", "image_uploaded"), zap.Error(err))
	}

	return record, nil
}

func (s *service) Get(ctx context.Context, imageID string, opts GetOptions) (*Retrieval, error) {
	if err := ValidateImageID(imageID); err != nil {
		return nil, err
	}
	record, err := s.getRecord(ctx, imageID)
	if err != nil {
		return nil, err
	}

	if opts.WantPresigned {
		return s.describe(ctx, record, opts)
	}

	getCtx, cancel := s.adapterContext(ctx)
	defer cancel()

	rc, err := s.blobStore.Get(getCtx, record.ObjectKey)
	if err == nil {
		defer rc.Close()
		var data []byte
		data, err = io.ReadAll(rc)
		if err == nil {
			return &Retrieval{Record: record, Data: data, AsAttachment: opts.AsAttachment}, nil
		}
	}

	log := s.logger.With(zap.String("image_id", record.ImageID), zap.String("object_key", record.ObjectKey))
	if errors.Is(err, ErrObjectNotFound) {
		log.Warn("metadata present but object missing")
		s.reportOrphan(ctx, Orphan{
			Kind:      OrphanRecord,
			ImageID:   record.ImageID,
			OwnerID:   record.OwnerID,
			ObjectKey: record.ObjectKey,
			Reason:    "object not found on read",
		})
	} else {
		log.Error("object read failed", zap.String("store", StoreObject), zap.Error(err))
	}
	return nil, &ObjectMissingError{
		ImageID:   record.ImageID,
		ObjectKey: record.ObjectKey,
		Err:       err,
	}
}

// describe issues an access descriptor without touching the blob store.
func (s *service) describe(ctx context.Context, record *ImageRecord, opts GetOptions) (*Retrieval, error) {
	ttl := resolveExpires(opts.ExpiresSeconds, s.defaultExpires, s.maxExpires)
	filename := ""
	if opts.AsAttachment {
		filename = record.Filename
	}

	signCtx, cancel := s.adapterContext(ctx)
	defer cancel()

	desc, err := s.access.Generate(signCtx, record.ObjectKey, ttl, filename)
	if err != nil {
		s.logger.Error("access descriptor generation failed",
			zap.String("image_id", record.ImageID),
			zap.String("store", StoreSigner),
			zap.Error(err))
		return nil, &StorageReadError{Store: StoreSigner, ImageID: record.ImageID, Err: err}
	}
	return &Retrieval{Record: record, Descriptor: desc, AsAttachment: opts.AsAttachment}, nil
}

func (s *service) Delete(ctx context.Context, imageID string, force bool) error {
	if err := ValidateImageID(imageID); err != nil {
		return err
	}
	record, err := s.getRecord(ctx, imageID)
	if err != nil {
		return err
	}
	log := s.logger.With(
		zap.String("image_id", record.ImageID),
		zap.String("object_key", record.ObjectKey),
		zap.Bool("force", force),
	)

	objCtx, cancel := s.adapterContext(ctx)
	objErr := s.blobStore.Delete(objCtx, record.ObjectKey)
	cancel()
	if objErr != nil {
		if !force {
			log.Error("object delete failed", zap.String("store", StoreObject), zap.Error(objErr))
			return &StorageDeleteError{
				Store:     StoreObject,
				ImageID:   record.ImageID,
				ObjectKey: record.ObjectKey,
				Err:       objErr,
			}
		}
		log.Warn("object delete failed, continuing with forced delete", zap.Error(objErr))
	}

	metaCtx, cancel := s.adapterContext(ctx)
	metaErr := s.repository.DeleteRecord(metaCtx, record.ImageID)
	cancel()
	if metaErr != nil {
		if errors.Is(metaErr, ErrRecordNotFound) {
			// A concurrent delete removed the record first.
			return &NotFoundError{ImageID: record.ImageID}
		}
		if objErr != nil {
			log.Error("metadata delete failed after forced object failure", zap.String("store", StoreMetadata), zap.Error(metaErr))
			return &StorageDeleteError{
				Store:     StoreMetadata,
				ImageID:   record.ImageID,
				ObjectKey: record.ObjectKey,
				Err:       metaErr,
			}
		}
		log.Error("metadata delete failed after object removal", zap.String("store", StoreMetadata), zap.Error(metaErr))
		s.reportOrphan(ctx, Orphan{
			Kind:      OrphanRecord,
			ImageID:   record.ImageID,
			OwnerID:   record.OwnerID,
			ObjectKey: record.ObjectKey,
			Reason:    "metadata delete failed: " + metaErr.Error(),
		})
		return &PartialDeleteError{
			ImageID:   record.ImageID,
			ObjectKey: record.ObjectKey,
			Err:       metaErr,
		}
	}

	if objErr != nil {
		s.reportOrphan(ctx, Orphan{
			Kind:      OrphanObject,
			ImageID:   record.ImageID,
			OwnerID:   record.OwnerID,
			ObjectKey: record.ObjectKey,
			Reason:    "forced delete left object: " + objErr.Error(),
		})
	}

	if err := s.eventSink.ImageDeleted(ctx, record); err != nil {
		log.Warn("event sink failed", zap.String("event", "image_deleted"), zap.Error(err))
	}
	return nil
}

// getRecord reads metadata and maps repository errors to the service taxonomy.
func (s *service) getRecord(ctx context.Context, imageID string) (*ImageRecord, error) {
	getCtx, cancel := s.adapterContext(ctx)
	defer cancel()

	record, err := s.repository.GetRecord(getCtx, imageID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, &NotFoundError{ImageID: imageID}
		}
		s.logger.Error("metadata read failed",
			zap.String("image_id", imageID),
			zap.String("store", StoreMetadata),
			zap.Error(err))
		return nil, &StorageReadError{Store: StoreMetadata, ImageID: imageID, Err: err}
	}
	return record, nil
}

func (s *service) reportOrphan(ctx context.Context, orphan Orphan) {
	if orphan.At.IsZero() {
		orphan.At = s.now().UTC()
	}
	if err := s.eventSink.OrphanDetected(ctx, orphan); err != nil {
		s.logger.Warn("event sink failed",
			zap.String("event", "orphan_detected"),
			zap.String("image_id", orphan.ImageID),
			zap.Error(err))
	}
}
