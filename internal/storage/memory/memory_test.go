package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/schema"
	"github.com/JonMunkholm/importer/internal/storage/storagetest"
)

func TestRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) importer.TxRepository {
		return New(schema.Students, "student_id")
	})
}

func TestRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := New(schema.Students, "student_id")

	rec := schema.Record{Fields: map[string]any{"student_id": "1", "first_name": "Ann"}}
	require.NoError(t, repo.Create(ctx, "r1", rec))
	rec.Fields["first_name"] = "changed"

	got, err := repo.FindByExternalID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Record.Get("first_name"))
	assert.Equal(t, schema.Students, got.Record.Entity)

	got.Record.Fields["first_name"] = "changed again"
	stored, ok := repo.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "Ann", stored.Get("first_name"))
}

func TestRepository_UpdateChangesExternalID(t *testing.T) {
	ctx := context.Background()
	repo := New(schema.Students, "student_id")

	require.NoError(t, repo.Create(ctx, "r1", schema.Record{Fields: map[string]any{"student_id": "1"}}))
	require.NoError(t, repo.Create(ctx, "r2", schema.Record{Fields: map[string]any{"student_id": "2"}}))

	assert.Error(t, repo.Update(ctx, "r1", schema.Record{Fields: map[string]any{"student_id": "2"}}))
	require.NoError(t, repo.Update(ctx, "r1", schema.Record{Fields: map[string]any{"student_id": "3"}}))

	_, err := repo.FindByExternalID(ctx, "1")
	assert.ErrorIs(t, err, importer.ErrRecordNotFound)
	got, err := repo.FindByExternalID(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, []string{"r1", "r2"}, repo.IDs())
	assert.Equal(t, 2, repo.Len())
}

func TestNewRepositories(t *testing.T) {
	repos := NewRepositories(schema.DefaultRegistry().All())
	assert.Len(t, repos, 3)

	r, err := repos.Repository(schema.Books)
	require.NoError(t, err)
	assert.Equal(t, "accession_no", r.(*Repository).externalField)

	_, err = repos.Repository("courses")
	assert.ErrorIs(t, err, schema.ErrUnknownEntity)
}
