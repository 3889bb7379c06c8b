package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/schema"
	"github.com/JonMunkholm/importer/internal/storage"
	"github.com/JonMunkholm/importer/internal/storage/storagetest"
)

func newDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "records.db")
}

func TestRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) importer.TxRepository {
		db, err := OpenDB(context.Background(), newDB(t))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return New(db, schema.Students, "student_id")
	})
}

func TestRepository_EntitiesAreSeparate(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(ctx, newDB(t))
	require.NoError(t, err)
	defer db.Close()

	students := New(db, schema.Students, "student_id")
	books := New(db, schema.Books, "accession_no")

	require.NoError(t, students.Create(ctx, "s1", schema.Record{Fields: map[string]any{"student_id": "42"}}))
	require.NoError(t, books.Create(ctx, "b1", schema.Record{Fields: map[string]any{"accession_no": "42"}}))

	got, err := books.FindByExternalID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)

	n, err := students.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepository_FieldEncoding(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(ctx, newDB(t))
	require.NoError(t, err)
	defer db.Close()

	repo := New(db, schema.Equipment, "serial_number")
	bought := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, "e1", schema.Record{Fields: map[string]any{
		"serial_number": "SN-1",
		"purchase_date": bought,
		"price":         12.5,
		"active":        true,
		"notes":         nil,
	}}))

	got, err := repo.FindByExternalID(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, bought.Format(time.RFC3339), got.Record.Get("purchase_date"))
	assert.Equal(t, 12.5, got.Record.Get("price"))
	assert.Equal(t, true, got.Record.Get("active"))
	assert.Contains(t, got.Record.Fields, "notes")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	repos, closeFn, err := Open(ctx, storage.Config{DSN: "file::memory:"}, schema.DefaultRegistry().All())
	require.NoError(t, err)
	defer closeFn()

	r, err := repos.Repository(schema.Students)
	require.NoError(t, err)
	require.NoError(t, r.Create(ctx, "s1", schema.Record{Fields: map[string]any{"student_id": "1"}}))
	_, err = r.FindByExternalID(ctx, "1")
	assert.NoError(t, err)

	_, _, err = Open(ctx, storage.Config{DSN: "  "}, nil)
	assert.Error(t, err)
}
