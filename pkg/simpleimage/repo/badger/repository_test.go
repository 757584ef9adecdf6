package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/repo/repotest"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(Config{Path: filepath.Join(t.TempDir(), "badger")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestBadgerRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simpleimage.Repository {
		return newTestRepo(t)
	})
}

func TestBadgerRepository_InMemory(t *testing.T) {
	repo, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer repo.Close()

	rec := repotest.NewRecord("u1", 0, "a")
	require.NoError(t, repo.PutRecord(context.Background(), rec))

	got, err := repo.GetRecord(context.Background(), rec.ImageID)
	require.NoError(t, err)
	repotest.AssertSameRecord(t, rec, got)
}

func TestBadgerRepository_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestBadgerRepository_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()

	repo, err := Open(Config{Path: dir})
	require.NoError(t, err)
	rec := repotest.NewRecord("u1", 0, "beach")
	require.NoError(t, repo.PutRecord(ctx, rec))
	require.NoError(t, repo.Close())

	repo, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer repo.Close()

	page, err := repo.QueryByOwner(ctx, simpleimage.OwnerQuery{OwnerID: "u1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	repotest.AssertSameRecord(t, rec, page.Records[0])
}

func TestInvertTime_Ordering(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(time.Hour),
		base,
		base.Add(-time.Nanosecond),
		time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		assert.Less(t, string(invertTime(times[i-1])), string(invertTime(times[i])),
			"newer times must sort first")
	}
}

func TestBadgerRepository_OwnerPrefixIsolation(t *testing.T) {
	repotest.RunOwnerPrefixIsolation(t, newTestRepo(t))

	repo, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer repo.Close()
	repotest.RunOwnerPrefixIsolation(t, repo)
}
