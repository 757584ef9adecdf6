package memory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/repo/memory"
	"github.com/tendant/simple-image/pkg/simpleimage/repo/repotest"
)

func TestMemoryRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simpleimage.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_OwnerPrefixIsolation(t *testing.T) {
	repotest.RunOwnerPrefixIsolation(t, memory.New())
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	rec := repotest.NewRecord(uuid.NewString(), 0, "a")
	require.NoError(t, repo.PutRecord(ctx, rec))

	// Mutating the caller's record must not leak into the store.
	rec.Tags[0] = "mutated"
	rec.Filename = "mutated.png"

	got, err := repo.GetRecord(ctx, rec.ImageID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Tags)
	assert.Equal(t, "photo.png", got.Filename)

	got.Tags[0] = "again"
	again, err := repo.GetRecord(ctx, rec.ImageID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Tags)
}

func TestMemoryRepository_Len(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	owner := uuid.NewString()

	a := repotest.NewRecord(owner, 0)
	b := repotest.NewRecord(owner, 1)
	require.NoError(t, repo.PutRecord(ctx, a))
	require.NoError(t, repo.PutRecord(ctx, b))
	assert.Equal(t, 2, repo.Len())

	require.NoError(t, repo.DeleteRecord(ctx, a.ImageID))
	assert.Equal(t, 1, repo.Len())
}
