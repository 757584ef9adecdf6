package simpleimage_test

import (
	"context"
	"errors"
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

func ids(records []*simpleimage.ImageRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ImageID)
	}
	return out
}

// listAll follows cursors until the listing is exhausted.
func listAll(t *testing.T, svc simpleimage.Service, filter simpleimage.QueryFilter) ([]string, int) {
	t.Helper()
	var all []string
	calls := 0
	for {
		res, err := svc.List(context.Background(), filter)
		require.NoError(t, err)
		calls++
		all = append(all, ids(res.Items)...)
		if res.NextCursor == "" {
			return all, calls
		}
		filter.Cursor = res.NextCursor
		require.Less(t, calls, 1000, "listing did not terminate")
	}
}

// countingRepo counts QueryByOwner calls and the batch sizes requested.
type countingRepo struct {
	*memory.Repository
	mu     sync.Mutex
	limits []int
}

func (c *countingRepo) QueryByOwner(ctx context.Context, q simpleimage.OwnerQuery) (*simpleimage.RecordPage, error) {
	c.mu.Lock()
	c.limits = append(c.limits, q.Limit)
	c.mu.Unlock()
	return c.Repository.QueryByOwner(ctx, q)
}

func (c *countingRepo) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits = nil
}

func TestListTagMatching(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	rec := env.upload(t, "u1", "a.png", "x", "y")

	res, err := env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ImageID}, ids(res.Items))
	assert.Empty(t, res.NextCursor)

	res, err = env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", Tags: []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ImageID}, ids(res.Items))

	// AND semantics: every requested tag must be present.
	res, err = env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", Tags: []string{"x", "z"}})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	res, err = env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", Tags: []string{"z"}})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Empty(t, res.NextCursor)
}

func TestListCursorResumesAfterLastItem(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	first := env.upload(t, "u1", "a.png")
	second := env.upload(t, "u1", "b.png")
	third := env.upload(t, "u1", "c.png")

	page1, err := env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", Limit: 1, Cursor: page1.NextCursor})
	require.NoError(t, err)

	both, err := env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, ids(both.Items), append(ids(page1.Items), ids(page2.Items)...))
	assert.Equal(t, []string{third.ImageID, second.ImageID}, ids(both.Items))

	page3, err := env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", Limit: 1, Cursor: page2.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ImageID}, ids(page3.Items))
	assert.Empty(t, page3.NextCursor)
}

func TestListPaginationConsistency(t *testing.T) {
	env := setupTestService(t)
	for i := 0; i < 23; i++ {
		tags := []string{"all"}
		if i%3 == 0 {
			tags = append(tags, "third")
		}
		env.upload(t, "u1", "img.png", tags...)
	}
	env.upload(t, "someone-else", "img.png", "all", "third")

	tests := []struct {
		name string
		tags []string
		want int
	}{
		{"no tags", nil, 23},
		{"common tag", []string{"all"}, 23},
		{"sparse tag", []string{"third"}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			single, err := env.svc.List(context.Background(), simpleimage.QueryFilter{OwnerID: "u1", Tags: tt.tags, Limit: 100})
			require.NoError(t, err)
			require.Len(t, single.Items, tt.want)
			assert.Empty(t, single.NextCursor)

			for _, limit := range []int{1, 4, 7} {
				paged, _ := listAll(t, env.svc, simpleimage.QueryFilter{OwnerID: "u1", Tags: tt.tags, Limit: limit})
				assert.Equal(t, ids(single.Items), paged, "limit %d", limit)
			}
		})
	}
}

func TestListOverFetchWidensBatches(t *testing.T) {
	repo := &countingRepo{Repository: memory.New()}
	clock := newTickClock()
	svc, err := simpleimage.New(
		simpleimage.WithRepository(repo),
		simpleimage.WithBlobStore(memorystorage.New()),
		simpleimage.WithClock(clock.Now),
	)
	require.NoError(t, err)
	env := &testEnv{svc: svc}

	var tagged []string
	for i := 0; i < 40; i++ {
		if i == 0 || i == 1 {
			tagged = append([]string{env.upload(t, "u1", "img.png", "rare").ImageID}, tagged...)
			continue
		}
		env.upload(t, "u1", "img.png")
	}

	// The two tagged records are the oldest, so the engine has to widen.
	repo.reset()
	res, err := svc.List(context.Background(), simpleimage.QueryFilter{OwnerID: "u1", Tags: []string{"rare"}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, tagged, ids(res.Items))
	assert.Empty(t, res.NextCursor)
	assert.Equal(t, []int{4, 8, 16, 32}, repo.limits)

	// Without local filters a single page of exactly limit is requested.
	repo.reset()
	res, err = svc.List(context.Background(), simpleimage.QueryFilter{OwnerID: "u1", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, res.Items, 5)
	assert.NotEmpty(t, res.NextCursor)
	assert.Equal(t, []int{5}, repo.limits)
}

func TestListAttemptCapReturnsResumableCursor(t *testing.T) {
	repo := &countingRepo{Repository: memory.New()}
	clock := newTickClock()
	svc, err := simpleimage.New(
		simpleimage.WithRepository(repo),
		simpleimage.WithBlobStore(memorystorage.New()),
		simpleimage.WithClock(clock.Now),
		simpleimage.WithMaxQueryAttempts(2),
	)
	require.NoError(t, err)
	env := &testEnv{svc: svc}

	var want []string
	for i := 0; i < 60; i++ {
		if i%20 == 0 {
			want = append([]string{env.upload(t, "u1", "img.png", "rare").ImageID}, want...)
			continue
		}
		env.upload(t, "u1", "img.png")
	}

	repo.reset()
	res, err := svc.List(context.Background(), simpleimage.QueryFilter{OwnerID: "u1", Tags: []string{"rare"}, Limit: 3})
	require.NoError(t, err)
	// Two attempts scan 6 + 12 records.
	assert.Equal(t, []int{6, 12}, repo.limits)
	assert.Empty(t, res.Items)
	require.NotEmpty(t, res.NextCursor, "cap reached before exhaustion must return a cursor")

	got, calls := listAll(t, svc, simpleimage.QueryFilter{OwnerID: "u1", Tags: []string{"rare"}, Limit: 3})
	assert.Equal(t, want, got)
	assert.Greater(t, calls, 1)
}

func TestListDateRangeAndSubstringFilters(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	var recs []*simpleimage.ImageRecord
	for _, name := range []string{"Beach.png", "city.png", "beach-2.png", "forest.png"} {
		rec, err := env.svc.Upload(ctx, simpleimage.UploadRequest{
			Filename:    name,
			FileData:    encode(pngBytes),
			OwnerID:     "u1",
			Description: "Taken at " + name,
		})
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	from := recs[1].CreatedAt
	to := recs[2].CreatedAt
	res, err := env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{recs[2].ImageID, recs[1].ImageID}, ids(res.Items))

	res, err = env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", FilenameContains: "BEACH"})
	require.NoError(t, err)
	assert.Equal(t, []string{recs[2].ImageID, recs[0].ImageID}, ids(res.Items))

	res, err = env.svc.List(ctx, simpleimage.QueryFilter{OwnerID: "u1", DescriptionContains: "forest"})
	require.NoError(t, err)
	assert.Equal(t, []string{recs[3].ImageID}, ids(res.Items))
}

func TestListValidation(t *testing.T) {
	env := setupTestService(t)
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name   string
		filter simpleimage.QueryFilter
		field  string
	}{
		{"missing owner", simpleimage.QueryFilter{}, "owner_id"},
		{"control character in owner", simpleimage.QueryFilter{OwnerID: "u1\x00evil"}, "owner_id"},
		{"negative limit", simpleimage.QueryFilter{OwnerID: "u1", Limit: -1}, "limit"},
		{"limit above max", simpleimage.QueryFilter{OwnerID: "u1", Limit: 101}, "limit"},
		{"inverted range", simpleimage.QueryFilter{OwnerID: "u1", DateFrom: &now, DateTo: &earlier}, "date_from"},
		{"garbage cursor", simpleimage.QueryFilter{OwnerID: "u1", Cursor: "garbage"}, "cursor"},
		{"unknown cursor version", simpleimage.QueryFilter{OwnerID: "u1", Cursor: "v9.e30"}, "cursor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.List(context.Background(), tt.filter)
			var ve *simpleimage.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestListDefaultLimit(t *testing.T) {
	env := setupTestService(t)
	for i := 0; i < simpleimage.DefaultListLimit+1; i++ {
		env.upload(t, "u1", "img.png")
	}

	res, err := env.svc.List(context.Background(), simpleimage.QueryFilter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, res.Items, simpleimage.DefaultListLimit)
	assert.NotEmpty(t, res.NextCursor)
}

func TestListRepositoryFailure(t *testing.T) {
	repo := &mockRepository{}
	repo.On("QueryByOwner", mock.Anything, mock.Anything).Return(nil, errors.New("index offline"))

	svc, err := simpleimage.New(simpleimage.WithRepository(repo), simpleimage.WithBlobStore(memorystorage.New()))
	require.NoError(t, err)

	_, err = svc.List(context.Background(), simpleimage.QueryFilter{OwnerID: "u1"})
	var re *simpleimage.StorageReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, simpleimage.StoreMetadata, re.Store)
}

func TestCursorRoundTrip(t *testing.T) {
	key := simpleimage.SortKey{
		CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 123456000, time.UTC),
		ImageID:   "6f1c2d1e-8d7a-4c53-9d4e-1a2b3c4d5e6f",
	}
	token := simpleimage.EncodeCursor(key)
	assert.Regexp(t, `^v1\.[A-Za-z0-9_-]+$`, token)

	got, err := simpleimage.DecodeCursor(token)
	require.NoError(t, err)
	assert.True(t, key.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, key.ImageID, got.ImageID)
}
