package presets

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

var pngData = base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nrest"))

func TestNewDevelopment(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "dev-data")

	comp, cleanup, err := NewDevelopment(ctx, nil, WithDevStorage(dir), WithDevBaseURL("http://dev.local"))
	require.NoError(t, err)

	rec, err := comp.Service.Upload(ctx, simpleimage.UploadRequest{
		Filename: "cat.png",
		FileData: pngData,
		OwnerID:  "u1",
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, rec.ObjectKey))
	require.NoError(t, err)

	got, err := comp.Service.Get(ctx, rec.ImageID, simpleimage.GetOptions{WantPresigned: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.Descriptor.URL, "http://dev.local/blobs/"))

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "storage directory should be removed")
}

func TestNewTesting(t *testing.T) {
	ctx := context.Background()
	comp := NewTesting(t)

	rec, err := comp.Service.Upload(ctx, simpleimage.UploadRequest{
		Filename: "cat.png",
		FileData: pngData,
		OwnerID:  "u1",
	})
	require.NoError(t, err)

	_, err = comp.Service.Get(ctx, rec.ImageID, simpleimage.GetOptions{WantPresigned: true})
	assert.ErrorIs(t, err, simpleimage.ErrSigningUnavailable)
}

func TestNewTesting_Isolated(t *testing.T) {
	ctx := context.Background()
	a := NewTesting(t)
	b := NewTesting(t, WithTestSigning("secret"))

	_, err := a.Service.Upload(ctx, simpleimage.UploadRequest{Filename: "cat.png", FileData: pngData, OwnerID: "u1"})
	require.NoError(t, err)

	res, err := b.Service.List(ctx, simpleimage.QueryFilter{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.NotNil(t, b.Presigner)
}

func TestNewProduction_RejectsMemoryStores(t *testing.T) {
	ctx := context.Background()

	t.Setenv("DATABASE_TYPE", "memory")
	_, _, err := NewProduction(ctx, nil)
	assert.ErrorContains(t, err, "DATABASE_TYPE")

	t.Setenv("DATABASE_TYPE", "badger")
	t.Setenv("BADGER_PATH", filepath.Join(t.TempDir(), "db"))
	t.Setenv("STORAGE_TYPE", "memory")
	_, _, err = NewProduction(ctx, nil)
	assert.ErrorContains(t, err, "STORAGE_TYPE")
}

func TestNewProduction_Badger(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_TYPE", "badger")
	t.Setenv("BADGER_PATH", filepath.Join(dir, "db"))
	t.Setenv("STORAGE_TYPE", "fs")
	t.Setenv("STORAGE_BASE_DIR", filepath.Join(dir, "images"))
	t.Setenv("ENABLE_METRICS", "false")

	comp, cfg, err := NewProduction(context.Background(), nil)
	require.NoError(t, err)
	defer comp.Close()
	assert.Equal(t, "badger", cfg.Database.Type)
}
