package simpleimage_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/repo/memory"
	memorystorage "github.com/tendant/simple-image/pkg/simpleimage/storage/memory"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

func encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// tickClock advances one second on every call.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickClock() *tickClock {
	return &tickClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

// Current returns the last time handed out.
func (c *tickClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
	orphans  []simpleimage.Orphan
}

func (r *recordingSink) ImageUploaded(ctx context.Context, rec *simpleimage.ImageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploaded = append(r.uploaded, rec.ImageID)
	return nil
}

func (r *recordingSink) ImageDeleted(ctx context.Context, rec *simpleimage.ImageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, rec.ImageID)
	return nil
}

func (r *recordingSink) OrphanDetected(ctx context.Context, o simpleimage.Orphan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = append(r.orphans, o)
	return nil
}

// mockBlobStore is a testify mock of simpleimage.BlobStore
type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) Put(ctx context.Context, key string, r io.Reader, opts simpleimage.PutOptions) error {
	args := m.Called(ctx, key, r, opts)
	return args.Error(0)
}

func (m *mockBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// mockRepository is a testify mock of simpleimage.Repository
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) PutRecord(ctx context.Context, rec *simpleimage.ImageRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockRepository) GetRecord(ctx context.Context, imageID string) (*simpleimage.ImageRecord, error) {
	args := m.Called(ctx, imageID)
	rec, _ := args.Get(0).(*simpleimage.ImageRecord)
	return rec, args.Error(1)
}

func (m *mockRepository) DeleteRecord(ctx context.Context, imageID string) error {
	args := m.Called(ctx, imageID)
	return args.Error(0)
}

func (m *mockRepository) QueryByOwner(ctx context.Context, q simpleimage.OwnerQuery) (*simpleimage.RecordPage, error) {
	args := m.Called(ctx, q)
	page, _ := args.Get(0).(*simpleimage.RecordPage)
	return page, args.Error(1)
}

// flakyStore fails Delete while failDelete is set.
type flakyStore struct {
	*memorystorage.Backend
	failDelete error
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.Backend.Delete(ctx, key)
}

// flakyRepo fails DeleteRecord while failDelete is set.
type flakyRepo struct {
	*memory.Repository
	failDelete error
}

func (f *flakyRepo) DeleteRecord(ctx context.Context, imageID string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.Repository.DeleteRecord(ctx, imageID)
}

type testEnv struct {
	svc   simpleimage.Service
	repo  *memory.Repository
	store *memorystorage.Backend
	sink  *recordingSink
	clock *tickClock
}

func setupTestService(t *testing.T, opts ...simpleimage.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:  memory.New(),
		store: memorystorage.New(),
		sink:  &recordingSink{},
		clock: newTickClock(),
	}
	options := append([]simpleimage.Option{
		simpleimage.WithRepository(env.repo),
		simpleimage.WithBlobStore(env.store),
		simpleimage.WithEventSink(env.sink),
		simpleimage.WithClock(env.clock.Now),
	}, opts...)

	svc, err := simpleimage.New(options...)
	require.NoError(t, err)
	require.NotNil(t, svc)
	env.svc = svc
	return env
}

func (e *testEnv) upload(t *testing.T, owner, filename string, tags ...string) *simpleimage.ImageRecord {
	t.Helper()
	rec, err := e.svc.Upload(context.Background(), simpleimage.UploadRequest{
		Filename: filename,
		FileData: encode(pngBytes),
		OwnerID:  owner,
		Tags:     tags,
	})
	require.NoError(t, err)
	return rec
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []simpleimage.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []simpleimage.Option{},
			expectError: true,
		},
		{
			name: "repository without blob store should fail",
			options: []simpleimage.Option{
				simpleimage.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "repository and blob store should succeed",
			options: []simpleimage.Option{
				simpleimage.WithRepository(memory.New()),
				simpleimage.WithBlobStore(memorystorage.New()),
			},
			expectError: false,
		},
		{
			name: "default expiry above maximum should fail",
			options: []simpleimage.Option{
				simpleimage.WithRepository(memory.New()),
				simpleimage.WithBlobStore(memorystorage.New()),
				simpleimage.WithExpiryPolicy(2*time.Hour, time.Hour),
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simpleimage.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestUploadThenGetReturnsSameBytes(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	rec, err := env.svc.Upload(ctx, simpleimage.UploadRequest{
		Filename:    "a.png",
		FileData:    encode(pngBytes),
		OwnerID:     "u1",
		Tags:        []string{" y", "x", "x", ""},
		Description: "sunset",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ImageID)
	assert.Equal(t, fmt.Sprintf("u1/%s/a.png", rec.ImageID), rec.ObjectKey)
	assert.Equal(t, "image/png", rec.ContentType)
	assert.Equal(t, int64(len(pngBytes)), rec.SizeBytes)
	assert.Equal(t, []string{"x", "y"}, rec.Tags)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	got, err := env.svc.Get(ctx, rec.ImageID, simpleimage.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got.Data)
	assert.Nil(t, got.Descriptor)
	assert.Equal(t, rec.ImageID, got.Record.ImageID)

	assert.Equal(t, "u1", env.store.Metadata(rec.ObjectKey)["owner_id"])
	assert.Equal(t, "a.png", env.store.Metadata(rec.ObjectKey)["original_filename"])
	assert.Equal(t, []string{rec.ImageID}, env.sink.uploaded)
}

func TestUploadContentType(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	// Sniffed image type wins over the extension.
	rec, err := env.svc.Upload(ctx, simpleimage.UploadRequest{Filename: "a.jpg", FileData: encode(pngBytes), OwnerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", rec.ContentType)

	// Unrecognized bytes fall back to the extension.
	rec, err = env.svc.Upload(ctx, simpleimage.UploadRequest{Filename: "b.GIF", FileData: encode([]byte("plain text")), OwnerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "image/gif", rec.ContentType)
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   simpleimage.UploadRequest
		field string
	}{
		{"empty filename", simpleimage.UploadRequest{FileData: encode(pngBytes), OwnerID: "u1"}, "filename"},
		{"path in filename", simpleimage.UploadRequest{Filename: "../a.png", FileData: encode(pngBytes), OwnerID: "u1"}, "filename"},
		{"empty owner", simpleimage.UploadRequest{Filename: "a.png", FileData: encode(pngBytes)}, "owner_id"},
		{"control character in owner", simpleimage.UploadRequest{Filename: "a.png", FileData: encode(pngBytes), OwnerID: "u1\x00evil"}, "owner_id"},
		{"disallowed extension", simpleimage.UploadRequest{Filename: "a.txt", FileData: encode(pngBytes), OwnerID: "u1"}, "filename"},
		{"missing payload", simpleimage.UploadRequest{Filename: "a.png", OwnerID: "u1"}, "file_data"},
		{"invalid base64", simpleimage.UploadRequest{Filename: "a.png", FileData: "!!not base64!!", OwnerID: "u1"}, "file_data"},
		{"too large", simpleimage.UploadRequest{Filename: "a.png", FileData: encode(make([]byte, 65)), OwnerID: "u1"}, "file_data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestService(t, simpleimage.WithMaxUploadBytes(64))
			rec, err := env.svc.Upload(context.Background(), tt.req)
			assert.Nil(t, rec)

			var ve *simpleimage.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, simpleimage.CodeValidation, simpleimage.ErrorCode(err))

			assert.Empty(t, env.store.Keys(""))
			assert.Equal(t, 0, env.repo.Len())
		})
	}
}

func TestUploadObjectWriteFailure(t *testing.T) {
	store := &mockBlobStore{}
	repo := &mockRepository{}
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket unavailable"))

	svc, err := simpleimage.New(simpleimage.WithRepository(repo), simpleimage.WithBlobStore(store))
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), simpleimage.UploadRequest{Filename: "a.png", FileData: encode(pngBytes), OwnerID: "u1"})

	var we *simpleimage.StorageWriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, simpleimage.StoreObject, we.Store)
	assert.NotEmpty(t, we.ObjectKey)
	repo.AssertNotCalled(t, "PutRecord", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestUploadMetadataWriteFailure(t *testing.T) {
	store := memorystorage.New()
	repo := &mockRepository{}
	sink := &recordingSink{}
	repo.On("PutRecord", mock.Anything, mock.Anything).Return(errors.New("table throttled"))

	svc, err := simpleimage.New(
		simpleimage.WithRepository(repo),
		simpleimage.WithBlobStore(store),
		simpleimage.WithEventSink(sink),
	)
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), simpleimage.UploadRequest{Filename: "a.png", FileData: encode(pngBytes), OwnerID: "u1"})

	var pe *simpleimage.PartialWriteError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, simpleimage.CodePartialWrite, pe.Code())

	// The object stays behind and is reported.
	assert.Equal(t, []string{pe.ObjectKey}, store.Keys(""))
	require.Len(t, sink.orphans, 1)
	assert.Equal(t, simpleimage.OrphanObject, sink.orphans[0].Kind)
	assert.Equal(t, pe.ObjectKey, sink.orphans[0].ObjectKey)
	assert.Equal(t, pe.ImageID, sink.orphans[0].ImageID)
	assert.Empty(t, sink.uploaded)
}

func TestUploadAdapterTimeout(t *testing.T) {
	store := &mockBlobStore{}
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)

	svc, err := simpleimage.New(
		simpleimage.WithRepository(memory.New()),
		simpleimage.WithBlobStore(store),
		simpleimage.WithAdapterTimeout(10*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), simpleimage.UploadRequest{Filename: "a.png", FileData: encode(pngBytes), OwnerID: "u1"})
	var we *simpleimage.StorageWriteError
	require.ErrorAs(t, err, &we)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetErrors(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	t.Run("invalid id", func(t *testing.T) {
		_, err := env.svc.Get(ctx, "not-a-uuid", simpleimage.GetOptions{})
		assert.True(t, simpleimage.IsValidation(err))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := env.svc.Get(ctx, "6f1c2d1e-8d7a-4c53-9d4e-1a2b3c4d5e6f", simpleimage.GetOptions{})
		assert.True(t, simpleimage.IsNotFound(err))
		assert.ErrorIs(t, err, simpleimage.ErrRecordNotFound)
	})

	t.Run("object missing", func(t *testing.T) {
		rec := env.upload(t, "u1", "a.png")
		require.NoError(t, env.store.Delete(ctx, rec.ObjectKey))

		_, err := env.svc.Get(ctx, rec.ImageID, simpleimage.GetOptions{})
		var om *simpleimage.ObjectMissingError
		require.ErrorAs(t, err, &om)
		assert.Equal(t, rec.ObjectKey, om.ObjectKey)
		assert.ErrorIs(t, err, simpleimage.ErrObjectNotFound)
		assert.False(t, simpleimage.IsNotFound(err))

		require.NotEmpty(t, env.sink.orphans)
		last := env.sink.orphans[len(env.sink.orphans)-1]
		assert.Equal(t, simpleimage.OrphanRecord, last.Kind)
		assert.Equal(t, rec.ImageID, last.ImageID)
	})
}

func TestGetObjectReadFailure(t *testing.T) {
	repo := memory.New()
	store := &mockBlobStore{}
	rec := &simpleimage.ImageRecord{
		ImageID:   "6f1c2d1e-8d7a-4c53-9d4e-1a2b3c4d5e6f",
		OwnerID:   "u1",
		ObjectKey: "u1/6f1c2d1e-8d7a-4c53-9d4e-1a2b3c4d5e6f/a.png",
		Filename:  "a.png",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.PutRecord(context.Background(), rec))
	store.On("Get", mock.Anything, rec.ObjectKey).Return(nil, context.DeadlineExceeded)

	svc, err := simpleimage.New(simpleimage.WithRepository(repo), simpleimage.WithBlobStore(store))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), rec.ImageID, simpleimage.GetOptions{})
	var om *simpleimage.ObjectMissingError
	require.ErrorAs(t, err, &om)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, simpleimage.ErrObjectNotFound)
}

func TestGetMetadataReadFailure(t *testing.T) {
	repo := &mockRepository{}
	repo.On("GetRecord", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	svc, err := simpleimage.New(simpleimage.WithRepository(repo), simpleimage.WithBlobStore(memorystorage.New()))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "6f1c2d1e-8d7a-4c53-9d4e-1a2b3c4d5e6f", simpleimage.GetOptions{})
	var re *simpleimage.StorageReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, simpleimage.StoreMetadata, re.Store)
}

func TestGetPresigned(t *testing.T) {
	var (
		gotTTL  time.Duration
		gotOpts simpleimage.SignOptions
	)
	signer := simpleimage.URLSignerFunc(func(ctx context.Context, key string, ttl time.Duration, opts simpleimage.SignOptions) (string, error) {
		gotTTL = ttl
		gotOpts = opts
		return "https://cdn.example.com/" + key + "?sig=abc", nil
	})
	env := setupTestService(t, simpleimage.WithURLSigner(signer))
	ctx := context.Background()

	rec := env.upload(t, "u1", "a.png")
	// Presigned retrieval never touches the object store.
	require.NoError(t, env.store.Delete(ctx, rec.ObjectKey))

	tests := []struct {
		name    string
		expires int
		ttl     time.Duration
	}{
		{"default", 0, time.Hour},
		{"negative uses default", -5, time.Hour},
		{"explicit", 120, 2 * time.Minute},
		{"clamped", 10 * 86400, 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.svc.Get(ctx, rec.ImageID, simpleimage.GetOptions{WantPresigned: true, ExpiresSeconds: tt.expires})
			require.NoError(t, err)
			require.NotNil(t, got.Descriptor)
			assert.Nil(t, got.Data)
			assert.Equal(t, tt.ttl, gotTTL)
			assert.Contains(t, got.Descriptor.URL, rec.ObjectKey)
			assert.False(t, gotOpts.Attachment)
			// Expiry is measured from the request, not from the upload.
			assert.Equal(t, env.clock.Current().Add(tt.ttl), got.Descriptor.ExpiresAt)
		})
	}

	t.Run("attachment", func(t *testing.T) {
		got, err := env.svc.Get(ctx, rec.ImageID, simpleimage.GetOptions{WantPresigned: true, AsAttachment: true})
		require.NoError(t, err)
		assert.True(t, got.AsAttachment)
		assert.True(t, gotOpts.Attachment)
		assert.Equal(t, "a.png", gotOpts.Filename)
	})
}

func TestGetPresignedWithoutSigner(t *testing.T) {
	env := setupTestService(t)
	rec := env.upload(t, "u1", "a.png")

	_, err := env.svc.Get(context.Background(), rec.ImageID, simpleimage.GetOptions{WantPresigned: true})
	var re *simpleimage.StorageReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, simpleimage.StoreSigner, re.Store)
	assert.ErrorIs(t, err, simpleimage.ErrSigningUnavailable)
}

func TestDelete(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	rec := env.upload(t, "u1", "a.png")

	require.NoError(t, env.svc.Delete(ctx, rec.ImageID, false))

	_, err := env.svc.Get(ctx, rec.ImageID, simpleimage.GetOptions{})
	assert.True(t, simpleimage.IsNotFound(err))
	assert.Empty(t, env.store.Keys(""))
	assert.Equal(t, []string{rec.ImageID}, env.sink.deleted)

	err = env.svc.Delete(ctx, rec.ImageID, false)
	assert.True(t, simpleimage.IsNotFound(err))
}

func setupFlaky(t *testing.T) (simpleimage.Service, *flakyStore, *flakyRepo, *recordingSink) {
	t.Helper()
	store := &flakyStore{Backend: memorystorage.New()}
	repo := &flakyRepo{Repository: memory.New()}
	sink := &recordingSink{}
	svc, err := simpleimage.New(
		simpleimage.WithRepository(repo),
		simpleimage.WithBlobStore(store),
		simpleimage.WithEventSink(sink),
	)
	require.NoError(t, err)
	return svc, store, repo, sink
}

func TestDeleteObjectFailure(t *testing.T) {
	ctx := context.Background()
	req := simpleimage.UploadRequest{Filename: "a.png", FileData: encode(pngBytes), OwnerID: "u1"}

	t.Run("without force leaves both stores unchanged", func(t *testing.T) {
		svc, store, _, sink := setupFlaky(t)
		rec, err := svc.Upload(ctx, req)
		require.NoError(t, err)

		store.failDelete = errors.New("access denied")
		err = svc.Delete(ctx, rec.ImageID, false)

		var de *simpleimage.StorageDeleteError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, simpleimage.StoreObject, de.Store)
		assert.Equal(t, rec.ObjectKey, de.ObjectKey)

		got, err := svc.Get(ctx, rec.ImageID, simpleimage.GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, pngBytes, got.Data)
		assert.Empty(t, sink.orphans)
		assert.Empty(t, sink.deleted)
	})

	t.Run("with force removes metadata anyway", func(t *testing.T) {
		svc, store, _, sink := setupFlaky(t)
		rec, err := svc.Upload(ctx, req)
		require.NoError(t, err)

		store.failDelete = errors.New("access denied")
		require.NoError(t, svc.Delete(ctx, rec.ImageID, true))

		_, err = svc.Get(ctx, rec.ImageID, simpleimage.GetOptions{})
		assert.True(t, simpleimage.IsNotFound(err))

		// The leaked object is reported for reconciliation.
		ok, _ := store.Exists(ctx, rec.ObjectKey)
		assert.True(t, ok)
		require.Len(t, sink.orphans, 1)
		assert.Equal(t, simpleimage.OrphanObject, sink.orphans[0].Kind)
		assert.Equal(t, rec.ObjectKey, sink.orphans[0].ObjectKey)
	})

	t.Run("with force and metadata failure changes nothing", func(t *testing.T) {
		svc, store, repo, _ := setupFlaky(t)
		rec, err := svc.Upload(ctx, req)
		require.NoError(t, err)

		store.failDelete = errors.New("access denied")
		repo.failDelete = errors.New("table throttled")
		err = svc.Delete(ctx, rec.ImageID, true)

		var de *simpleimage.StorageDeleteError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, simpleimage.StoreMetadata, de.Store)

		repo.failDelete = nil
		_, err = repo.GetRecord(ctx, rec.ImageID)
		assert.NoError(t, err)
	})
}

func TestDeleteMetadataFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, repo, sink := setupFlaky(t)
	rec, err := svc.Upload(ctx, simpleimage.UploadRequest{Filename: "a.png", FileData: encode(pngBytes), OwnerID: "u1"})
	require.NoError(t, err)

	repo.failDelete = errors.New("table throttled")
	err = svc.Delete(ctx, rec.ImageID, false)

	var pe *simpleimage.PartialDeleteError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, rec.ObjectKey, pe.ObjectKey)
	assert.Equal(t, simpleimage.CodePartialDelete, simpleimage.ErrorCode(err))

	ok, _ := store.Exists(ctx, rec.ObjectKey)
	assert.False(t, ok)
	require.Len(t, sink.orphans, 1)
	assert.Equal(t, simpleimage.OrphanRecord, sink.orphans[0].Kind)

	// Metadata is stale: Get now reports the missing object.
	repo.failDelete = nil
	_, err = svc.Get(ctx, rec.ImageID, simpleimage.GetOptions{})
	assert.ErrorIs(t, err, simpleimage.ErrObjectNotFound)
}

func TestEventSinkErrorsDoNotFailOperations(t *testing.T) {
	failing := &failingSink{}
	env := setupTestService(t, simpleimage.WithEventSink(failing))

	rec := env.upload(t, "u1", "a.png")
	assert.NoError(t, env.svc.Delete(context.Background(), rec.ImageID, false))
}

type failingSink struct{}

func (failingSink) ImageUploaded(context.Context, *simpleimage.ImageRecord) error {
	return errors.New("sink down")
}

func (failingSink) ImageDeleted(context.Context, *simpleimage.ImageRecord) error {
	return errors.New("sink down")
}

func (failingSink) OrphanDetected(context.Context, simpleimage.Orphan) error {
	return errors.New("sink down")
}
