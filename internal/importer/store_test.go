package importer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	s := NewMemoryStore()
	tx := ImportTransaction{ID: "a", Status: StatusPending, CreatedRecords: []string{"1"}}
	require.NoError(t, s.Save(tx))

	tx.CreatedRecords[0] = "changed"
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, got.CreatedRecords)

	got.CreatedRecords[0] = "changed again"
	again, _ := s.Get("a")
	assert.Equal(t, []string{"1"}, again.CreatedRecords)
}

func TestMemoryStore_Update(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Save(ImportTransaction{ID: "a", Status: StatusPending}))

	updated, err := s.Update("a", func(tx *ImportTransaction) error {
		tx.TotalRecords = 7
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.TotalRecords)

	_, err = s.Update("a", func(tx *ImportTransaction) error {
		tx.TotalRecords = 99
		return errors.New("nope")
	})
	require.Error(t, err)
	got, _ := s.Get("a")
	assert.Equal(t, 7, got.TotalRecords)

	_, err = s.Update("missing", func(*ImportTransaction) error { return nil })
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestMemoryStore_Batches(t *testing.T) {
	s := NewMemoryStore()

	err := s.AppendBatch(ImportBatch{TransactionID: "a", Number: 1})
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	require.NoError(t, s.Save(ImportTransaction{ID: "a"}))
	require.NoError(t, s.AppendBatch(ImportBatch{TransactionID: "a", Number: 1}))
	require.NoError(t, s.AppendBatch(ImportBatch{TransactionID: "a", Number: 2}))

	batches, err := s.Batches("a")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 1, batches[0].Number)
	assert.Equal(t, 2, batches[1].Number)
}

func TestMemoryStore_ListAndEvict(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ImportTransaction{ID: "new", Status: StatusCompleted, CreatedAt: base.Add(2 * time.Hour), UpdatedAt: base.Add(2 * time.Hour)}))
	require.NoError(t, s.Save(ImportTransaction{ID: "old", Status: StatusFailed, CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, s.Save(ImportTransaction{ID: "running", Status: StatusInProgress, CreatedAt: base, UpdatedAt: base}))

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "old", list[0].ID)
	assert.Equal(t, "running", list[1].ID)
	assert.Equal(t, "new", list[2].ID)

	assert.Equal(t, 1, s.Evict(base.Add(time.Hour)))
	_, err := s.Get("old")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	_, err = s.Get("running")
	assert.NoError(t, err)
	_, err = s.Get("new")
	assert.NoError(t, err)
}
