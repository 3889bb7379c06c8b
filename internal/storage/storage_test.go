package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/importer/internal/schema"
	"github.com/JonMunkholm/importer/internal/storage"
	_ "github.com/JonMunkholm/importer/internal/storage/all"
)

func TestDrivers(t *testing.T) {
	assert.Equal(t, []string{"memory", "postgres", "sqlite"}, storage.Drivers())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	registry := schema.DefaultRegistry()

	repos, closeFn, err := storage.Open(ctx, storage.Config{Driver: "Memory"}, registry)
	require.NoError(t, err)
	defer closeFn()

	for _, s := range registry.All() {
		_, err := repos.Repository(s.Entity)
		assert.NoError(t, err, s.Entity)
	}

	_, _, err = storage.Open(ctx, storage.Config{Driver: "oracle"}, registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory, postgres, sqlite")
}

func TestFieldCodec(t *testing.T) {
	fields := map[string]any{
		"id":      "A-1",
		"count":   int64(42),
		"ratio":   0.25,
		"big":     int64(1) << 53,
		"active":  false,
		"missing": nil,
		"when":    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := storage.EncodeFields(fields)
	require.NoError(t, err)

	got, err := storage.DecodeFields(data)
	require.NoError(t, err)

	assert.Equal(t, "A-1", got["id"])
	assert.Equal(t, int64(42), got["count"])
	assert.Equal(t, 0.25, got["ratio"])
	assert.Equal(t, int64(1)<<53, got["big"])
	assert.Equal(t, false, got["active"])
	assert.Nil(t, got["missing"])
	assert.Equal(t, "2024-01-02T03:04:05Z", got["when"])

	_, err = storage.DecodeFields([]byte("not json"))
	assert.Error(t, err)
}

func TestExternalIDText(t *testing.T) {
	assert.Equal(t, "1001", storage.ExternalIDText(float64(1001)))
	assert.Equal(t, "S-1", storage.ExternalIDText(" S-1 "))
	assert.Equal(t, "", storage.ExternalIDText(nil))
}
