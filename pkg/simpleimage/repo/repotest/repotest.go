// Package repotest holds the behavior every simpleimage.Repository must
// share, so each backend runs the same pagination and ordering checks.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Factory returns an empty repository (or one scoped so that fresh owner
// IDs see no existing records).
type Factory func(t *testing.T) simpleimage.Repository

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewRecord builds a record for owner created at base+offset.
func NewRecord(owner string, offset time.Duration, tags ...string) *simpleimage.ImageRecord {
	id := uuid.NewString()
	created := base.Add(offset)
	return &simpleimage.ImageRecord{
		ImageID:     id,
		OwnerID:     owner,
		ObjectKey:   fmt.Sprintf("%s/%s/photo.png", owner, id),
		Filename:    "photo.png",
		ContentType: "image/png",
		SizeBytes:   42,
		Tags:        simpleimage.NormalizeTags(tags),
		Description: "test image",
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

// Run executes the shared repository checks.
func Run(t *testing.T, newRepo Factory) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newRepo(t)) })
	t.Run("DuplicatePut", func(t *testing.T) { testDuplicate(t, newRepo(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newRepo(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("Ordering", func(t *testing.T) { testOrdering(t, newRepo(t)) })
	t.Run("Pagination", func(t *testing.T) { testPagination(t, newRepo(t)) })
	t.Run("DateRange", func(t *testing.T) { testDateRange(t, newRepo(t)) })
	t.Run("OwnerIsolation", func(t *testing.T) { testOwnerIsolation(t, newRepo(t)) })
}

func testPutGet(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	rec := NewRecord(uuid.NewString(), 0, "beach", "sunset")
	require.NoError(t, repo.PutRecord(ctx, rec))

	got, err := repo.GetRecord(ctx, rec.ImageID)
	require.NoError(t, err)
	AssertSameRecord(t, rec, got)
}

func testDuplicate(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	rec := NewRecord(uuid.NewString(), 0)
	require.NoError(t, repo.PutRecord(ctx, rec))

	err := repo.PutRecord(ctx, rec)
	assert.ErrorIs(t, err, simpleimage.ErrRecordExists)
}

func testNotFound(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	_, err := repo.GetRecord(ctx, uuid.NewString())
	assert.ErrorIs(t, err, simpleimage.ErrRecordNotFound)

	err = repo.DeleteRecord(ctx, uuid.NewString())
	assert.ErrorIs(t, err, simpleimage.ErrRecordNotFound)
}

func testDelete(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	owner := uuid.NewString()
	rec := NewRecord(owner, 0)
	require.NoError(t, repo.PutRecord(ctx, rec))
	require.NoError(t, repo.DeleteRecord(ctx, rec.ImageID))

	_, err := repo.GetRecord(ctx, rec.ImageID)
	assert.ErrorIs(t, err, simpleimage.ErrRecordNotFound)

	page, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{OwnerID: owner, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Nil(t, page.Next)
}

func testOrdering(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	owner := uuid.NewString()

	older := NewRecord(owner, 0)
	tieA := NewRecord(owner, time.Minute)
	tieB := NewRecord(owner, time.Minute)
	newest := NewRecord(owner, 2*time.Minute)
	if tieB.ImageID < tieA.ImageID {
		tieA, tieB = tieB, tieA
	}
	for _, r := range []*simpleimage.ImageRecord{tieB, older, newest, tieA} {
		require.NoError(t, repo.PutRecord(ctx, r))
	}

	page, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{OwnerID: owner, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{newest.ImageID, tieA.ImageID, tieB.ImageID, older.ImageID}, IDs(page.Records))
	assert.Nil(t, page.Next)
}

func testPagination(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	owner := uuid.NewString()
	for i := 0; i < 7; i++ {
		// Pairs share a timestamp to exercise the ImageID tie-break across pages.
		require.NoError(t, repo.PutRecord(ctx, NewRecord(owner, time.Duration(i/2)*time.Second)))
	}

	all, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{OwnerID: owner, Limit: 100})
	require.NoError(t, err)
	require.Len(t, all.Records, 7)

	var collected []string
	var after *simpleimage.SortKey
	pages := 0
	for {
		page, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{OwnerID: owner, Limit: 3, After: after})
		require.NoError(t, err)
		pages++
		require.LessOrEqual(t, len(page.Records), 3)
		collected = append(collected, IDs(page.Records)...)
		if page.Next == nil {
			break
		}
		last := page.Records[len(page.Records)-1].SortKey()
		assert.Equal(t, last.ImageID, page.Next.ImageID)
		assert.True(t, last.CreatedAt.Equal(page.Next.CreatedAt))
		after = page.Next
		require.Less(t, pages, 10, "pagination did not terminate")
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, IDs(all.Records), collected)

	// A full final page must not report more.
	page, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{OwnerID: owner, Limit: 7})
	require.NoError(t, err)
	assert.Len(t, page.Records, 7)
	assert.Nil(t, page.Next)
}

func testDateRange(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	owner := uuid.NewString()
	var recs []*simpleimage.ImageRecord
	for i := 0; i < 5; i++ {
		r := NewRecord(owner, time.Duration(i)*time.Hour)
		recs = append(recs, r)
		require.NoError(t, repo.PutRecord(ctx, r))
	}

	from := recs[1].CreatedAt
	to := recs[3].CreatedAt
	page, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{
		OwnerID: owner,
		Range:   simpleimage.DateRange{From: &from, To: &to},
		Limit:   10,
	})
	require.NoError(t, err)
	// Both bounds are inclusive.
	assert.Equal(t, []string{recs[3].ImageID, recs[2].ImageID, recs[1].ImageID}, IDs(page.Records))

	page, err = repo.QueryByOwner(ctx, simpleimage.OwnerQuery{
		OwnerID: owner,
		Range:   simpleimage.DateRange{From: &to},
		Limit:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{recs[4].ImageID}, IDs(page.Records))
	require.NotNil(t, page.Next)

	page, err = repo.QueryByOwner(ctx, simpleimage.OwnerQuery{
		OwnerID: owner,
		Range:   simpleimage.DateRange{From: &to},
		Limit:   1,
		After:   page.Next,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{recs[3].ImageID}, IDs(page.Records))
	assert.Nil(t, page.Next)
}

func testOwnerIsolation(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	ownerA := uuid.NewString()
	ownerB := uuid.NewString()
	a := NewRecord(ownerA, 0)
	b := NewRecord(ownerB, 0)
	require.NoError(t, repo.PutRecord(ctx, a))
	require.NoError(t, repo.PutRecord(ctx, b))

	page, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{OwnerID: ownerA, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ImageID}, IDs(page.Records))
}

// RunOwnerPrefixIsolation checks owners whose IDs are prefixes of each
// other, including through a NUL byte. Stores that reject NUL in text
// (postgres) do not run it.
func RunOwnerPrefixIsolation(t *testing.T, repo simpleimage.Repository) {
	ctx := context.Background()
	pairs := [][2]string{
		{"ab", "abc"},
		{"u1", "u1\x00evil"},
		{"u2\x00", "u2"},
	}
	for _, pair := range pairs {
		owner, other := pair[0], pair[1]
		rec := NewRecord(owner, 0)
		require.NoError(t, repo.PutRecord(ctx, rec))
		require.NoError(t, repo.PutRecord(ctx, NewRecord(other, time.Second)))

		page, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{OwnerID: owner, Limit: 10})
		require.NoError(t, err, "owner %q", owner)
		assert.Equal(t, []string{rec.ImageID}, IDs(page.Records), "owner %q", owner)
		assert.Nil(t, page.Next)
	}
}

// IDs returns the image IDs of records in order.
func IDs(records []*simpleimage.ImageRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ImageID)
	}
	return out
}

// AssertSameRecord compares records, treating timestamps by instant.
func AssertSameRecord(t *testing.T, want, got *simpleimage.ImageRecord) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ImageID, got.ImageID)
	assert.Equal(t, want.OwnerID, got.OwnerID)
	assert.Equal(t, want.ObjectKey, got.ObjectKey)
	assert.Equal(t, want.Filename, got.Filename)
	assert.Equal(t, want.ContentType, got.ContentType)
	assert.Equal(t, want.SizeBytes, got.SizeBytes)
	assert.ElementsMatch(t, want.Tags, got.Tags)
	assert.Equal(t, want.Description, got.Description)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at %s != %s", want.UpdatedAt, got.UpdatedAt)
}
