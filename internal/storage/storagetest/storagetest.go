// Package storagetest checks that a repository honors the contract the
// import manager relies on.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/schema"
)

// Factory returns an empty students repository keyed by student_id.
type Factory func(t *testing.T) importer.TxRepository

func student(id, first string, grade int64) schema.Record {
	return schema.Record{
		Entity: schema.Students,
		Fields: map[string]any{
			"student_id":  id,
			"first_name":  first,
			"grade_level": grade,
		},
	}
}

// Run runs the contract tests as subtests of t.
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, "r1", student("1001", "Ann", 7)))

		got, err := repo.FindByExternalID(ctx, "1001")
		require.NoError(t, err)
		assert.Equal(t, "r1", got.ID)
		assert.Equal(t, schema.Students, got.Record.Entity)
		assert.Equal(t, student("1001", "Ann", 7).Fields, got.Record.Fields)
	})

	t.Run("find missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByExternalID(ctx, "nope")
		assert.ErrorIs(t, err, importer.ErrRecordNotFound)
	})

	t.Run("duplicate external id", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, "r1", student("1001", "Ann", 7)))
		assert.Error(t, repo.Create(ctx, "r2", student("1001", "Ben", 8)))
	})

	t.Run("update", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, "r1", student("1001", "Ann", 7)))
		require.NoError(t, repo.Update(ctx, "r1", student("1001", "Anna", 8)))

		got, err := repo.FindByExternalID(ctx, "1001")
		require.NoError(t, err)
		assert.Equal(t, "Anna", got.Record.Get("first_name"))
		assert.Equal(t, int64(8), got.Record.Get("grade_level"))

		assert.ErrorIs(t, repo.Update(ctx, "missing", student("2", "X", 1)), importer.ErrRecordNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, "r1", student("1001", "Ann", 7)))
		require.NoError(t, repo.Delete(ctx, "r1"))

		_, err := repo.FindByExternalID(ctx, "1001")
		assert.ErrorIs(t, err, importer.ErrRecordNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "r1"), importer.ErrRecordNotFound)
	})

	t.Run("transaction commits despite failed statement", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, "r1", student("1001", "Ann", 7)))

		err := repo.WithTx(ctx, func(tx importer.Repository) error {
			assert.Error(t, tx.Delete(ctx, "missing"))
			assert.NoError(t, tx.Delete(ctx, "r1"))
			assert.NoError(t, tx.Create(ctx, "r2", student("1002", "Ben", 8)))
			return nil
		})
		require.NoError(t, err)

		_, err = repo.FindByExternalID(ctx, "1001")
		assert.ErrorIs(t, err, importer.ErrRecordNotFound)
		got, err := repo.FindByExternalID(ctx, "1002")
		require.NoError(t, err)
		assert.Equal(t, "r2", got.ID)
	})

	t.Run("transaction discarded on error", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, "r1", student("1001", "Ann", 7)))

		boom := errors.New("boom")
		err := repo.WithTx(ctx, func(tx importer.Repository) error {
			require.NoError(t, tx.Delete(ctx, "r1"))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = repo.FindByExternalID(ctx, "1001")
		assert.NoError(t, err)
	})
}
