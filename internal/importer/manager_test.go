package importer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/importer/internal/metrics"
	"github.com/JonMunkholm/importer/internal/pipeline"
	"github.com/JonMunkholm/importer/internal/schema"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusRolledBack, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusRolledBack, false},
		{StatusCompleted, StatusRolledBack, true},
		{StatusFailed, StatusRolledBack, true},
		{StatusCompleted, StatusInProgress, false},
		{StatusRolledBack, StatusCompleted, false},
		{StatusRolledBack, StatusRolledBack, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s to %s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestManager_CreateTransaction(t *testing.T) {
	m := newTestManager(t, newMockRepo())
	ctx := context.Background()

	meta := map[string]any{"file": "students.csv"}
	tx, err := m.CreateTransaction(ctx, "student", 3, meta)
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, schema.Students, tx.Entity)
	assert.Equal(t, StatusPending, tx.Status)
	assert.Equal(t, 3, tx.TotalRecords)
	assert.Empty(t, tx.CreatedRecords)

	meta["file"] = "changed"
	got, err := m.GetTransaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "students.csv", got.Metadata["file"])

	_, err = m.CreateTransaction(ctx, "courses", 1, nil)
	assert.ErrorIs(t, err, schema.ErrUnknownEntity)
}

func TestManager_DuplicateExternalIDCreatesThenUpdates(t *testing.T) {
	repo := newMockRepo()
	m := newTestManager(t, repo)
	ctx := context.Background()

	tx, err := m.Import(ctx, resultOf(students("1001", "1001")), 0, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Len(t, tx.CreatedRecords, 1)
	assert.Len(t, tx.UpdatedRecords, 1)
	assert.Equal(t, tx.CreatedRecords[0], tx.UpdatedRecords[0])
	assert.Equal(t, 2, tx.ProcessedRecords)
	assert.Equal(t, 2, tx.SuccessRecords)
	assert.Empty(t, tx.Errors)
	assert.False(t, tx.CompletedAt.IsZero())
}

func TestManager_Batches(t *testing.T) {
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprint(1000 + i)
	}

	tests := []struct {
		name      string
		batchSize int
		wantSizes []int
	}{
		{"default size", 0, []int{50, 50, 20}},
		{"explicit size", 100, []int{100, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, newMockRepo())

			tx, err := m.Import(context.Background(), resultOf(students(ids...)), tt.batchSize, nil)
			require.NoError(t, err)
			assert.Equal(t, 120, tx.TotalRecords)
			assert.Len(t, tx.CreatedRecords, 120)
			assert.Equal(t, len(tt.wantSizes), tx.Batches)

			batches, err := m.Batches(tx.ID)
			require.NoError(t, err)
			require.Len(t, batches, len(tt.wantSizes))
			for i, b := range batches {
				assert.Equal(t, i+1, b.Number)
				assert.Equal(t, tx.ID, b.TransactionID)
				assert.Len(t, b.Records, tt.wantSizes[i])
				assert.Len(t, b.CreatedRecordIDs, tt.wantSizes[i])
				assert.Equal(t, BatchCompleted, b.Status)
			}
		})
	}
}

func TestManager_RecordFailuresDoNotStopBatch(t *testing.T) {
	repo := newMockRepo()
	repo.failCreate["1002"] = true
	m := newTestManager(t, repo)

	records := students("1001", "1002", "1003")
	records = append(records, schema.Record{Entity: schema.Students, Fields: map[string]any{"first_name": "No ID"}})

	tx, err := m.Import(context.Background(), resultOf(records), 10, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, tx.Status)
	assert.Equal(t, 4, tx.ProcessedRecords)
	assert.Equal(t, 2, tx.SuccessRecords)
	assert.Equal(t, 2, tx.ErrorRecords)
	assert.Equal(t, tx.ProcessedRecords, tx.SuccessRecords+tx.ErrorRecords)
	assert.Len(t, tx.CreatedRecords, 2)

	require.Len(t, tx.Errors, 2)
	assert.Equal(t, 2, tx.Errors[0].Index)
	assert.Equal(t, "1002", tx.Errors[0].ExternalID)
	assert.Contains(t, tx.Errors[0].Message, "insert rejected")
	assert.Equal(t, 4, tx.Errors[1].Index)
	assert.Contains(t, tx.Errors[1].Message, ErrMissingExternalID.Error())
	assert.Empty(t, tx.Error)

	batches, err := m.Batches(tx.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, BatchPartial, batches[0].Status)
}

func TestManager_RollbackRecommendation(t *testing.T) {
	tests := []struct {
		name          string
		total, failed int
		want          bool
	}{
		{"many errors at high rate", 30, 20, true},
		{"many errors at low rate", 30, 12, false},
		{"high rate but few errors", 15, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			ids := make([]string, tt.total)
			for i := range ids {
				ids[i] = fmt.Sprint(i)
				if i < tt.failed {
					repo.failCreate[ids[i]] = true
				}
			}
			m := newTestManager(t, repo)

			tx, err := m.Import(context.Background(), resultOf(students(ids...)), 0, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tx.RollbackRecommended)
			assert.Equal(t, StatusFailed, tx.Status)
			assert.Equal(t, tt.failed, tx.ErrorRecords)
		})
	}
}

func TestManager_PanicFailsTransaction(t *testing.T) {
	repo := newMockRepo()
	repo.panicOn = "3"
	m := newTestManager(t, repo)

	tx, err := m.Import(context.Background(), resultOf(students("1", "2", "3", "4")), 2, nil)
	require.Error(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, StatusFailed, tx.Status)
	assert.Contains(t, tx.Error, "panic")
	assert.Len(t, tx.CreatedRecords, 2)
	assert.Equal(t, tx.ProcessedRecords, tx.SuccessRecords+tx.ErrorRecords)

	batches, err := m.Batches(tx.ID)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, BatchFailed, batches[1].Status)

	res, err := m.RollbackTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.DeletedRecords)
}

func TestManager_ProcessTransactionErrors(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newMockRepo())

	_, err := m.ProcessTransaction(ctx, "missing", resultOf(nil), 0)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	tx, err := m.CreateTransaction(ctx, schema.Students, 0, nil)
	require.NoError(t, err)

	_, err = m.ProcessTransaction(ctx, tx.ID, &pipeline.TransformationResult{Entity: schema.Books}, 0)
	assert.Error(t, err)
	got, err := m.GetTransaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	_, err = m.ProcessTransaction(ctx, tx.ID, resultOf(students("1")), 0)
	require.NoError(t, err)

	_, err = m.ProcessTransaction(ctx, tx.ID, resultOf(students("2")), 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManager_MissingRepository(t *testing.T) {
	m := NewManager(schema.DefaultRegistry(), RepositoryMap{})
	ctx := context.Background()

	tx, err := m.CreateTransaction(ctx, schema.Books, 1, nil)
	require.NoError(t, err)

	got, err := m.ProcessTransaction(ctx, tx.ID, &pipeline.TransformationResult{Entity: schema.Books}, 0)
	assert.ErrorIs(t, err, schema.ErrUnknownEntity)
	require.NotNil(t, got)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestManager_CanceledBetweenBatches(t *testing.T) {
	m := newTestManager(t, newMockRepo())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx, err := m.Import(ctx, resultOf(students("1", "2")), 1, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, tx.Status)
	assert.Equal(t, 0, tx.ProcessedRecords)
}

func TestManager_EmptyImportCompletes(t *testing.T) {
	m := newTestManager(t, newMockRepo())

	tx, err := m.Import(context.Background(), resultOf(nil), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, 0, tx.Batches)
}

func TestManager_Rollback(t *testing.T) {
	repo := newMockRepo()
	before := studentRecord("900", "Original")
	repo.seed("existing", before)
	m := newTestManager(t, repo)
	ctx := context.Background()

	records := []schema.Record{
		studentRecord("1001", "New"),
		studentRecord("900", "Changed"),
		studentRecord("1001", "New again"),
	}
	tx, err := m.Import(ctx, resultOf(records), 0, nil)
	require.NoError(t, err)
	require.Len(t, tx.CreatedRecords, 1)
	require.Len(t, tx.UpdatedRecords, 2)

	changed, _ := repo.get("existing")
	assert.Equal(t, "Changed", changed.Get("first_name"))

	res, err := m.RollbackTransaction(ctx, tx.ID)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.DeletedRecords)
	assert.Equal(t, 1, res.RestoredRecords)
	assert.Empty(t, res.Errors)

	// Only ids the transaction created were deleted.
	assert.Equal(t, tx.CreatedRecords, repo.deleted)

	restored, ok := repo.get("existing")
	require.True(t, ok)
	assert.Equal(t, before.Fields, restored.Fields)

	got, err := m.GetTransaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRolledBack, got.Status)

	_, err = m.RollbackTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManager_RollbackUsesRepositoryTransaction(t *testing.T) {
	repo := &txMockRepo{mockRepo: newMockRepo()}
	m := newTestManager(t, repo)
	ctx := context.Background()

	tx, err := m.Import(ctx, resultOf(students("1", "2")), 0, nil)
	require.NoError(t, err)

	res, err := m.RollbackTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, repo.txCalls)
	assert.ElementsMatch(t, tx.CreatedRecords, repo.deleted)
}

func TestManager_PartialRollbackCanBeRetried(t *testing.T) {
	repo := newMockRepo()
	m := newTestManager(t, repo)
	ctx := context.Background()

	tx, err := m.Import(ctx, resultOf(students("1", "2", "3")), 0, nil)
	require.NoError(t, err)

	stuck := tx.CreatedRecords[1]
	repo.failDelete[stuck] = true

	res, err := m.RollbackTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.DeletedRecords)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], stuck)

	got, _ := m.GetTransaction(tx.ID)
	assert.Equal(t, StatusCompleted, got.Status)

	delete(repo.failDelete, stuck)
	res, err = m.RollbackTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.DeletedRecords)

	got, _ = m.GetTransaction(tx.ID)
	assert.Equal(t, StatusRolledBack, got.Status)
}

func TestManager_RollbackErrors(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newMockRepo())

	_, err := m.RollbackTransaction(ctx, "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	pending, err := m.CreateTransaction(ctx, schema.Students, 0, nil)
	require.NoError(t, err)
	_, err = m.RollbackTransaction(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

}

func TestManager_RollbackWithoutPersistedRecords(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepo()
	m := newTestManager(t, repo)

	empty, err := m.Import(ctx, resultOf(nil), 0, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, empty.Status)

	res, err := m.RollbackTransaction(ctx, empty.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.DeletedRecords)

	got, err := m.GetTransaction(empty.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRolledBack, got.Status)

	// Every record fails, so nothing was created.
	failed, err := m.Import(ctx, resultOf([]schema.Record{
		{Entity: schema.Students, Fields: map[string]any{"first_name": "Ann"}},
		{Entity: schema.Students, Fields: map[string]any{"first_name": "Ben"}},
	}), 0, nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	require.Empty(t, failed.CreatedRecords)

	res, err = m.RollbackTransaction(ctx, failed.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.DeletedRecords)
	assert.Empty(t, repo.deleted)

	got, err = m.GetTransaction(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRolledBack, got.Status)
}

func TestManager_ListingAndCleanup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	m := newTestManager(t, newMockRepo(), WithClock(clock.Now))
	ctx := context.Background()

	done, err := m.Import(ctx, resultOf(students("1")), 0, nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	pending, err := m.CreateTransaction(ctx, schema.Students, 5, nil)
	require.NoError(t, err)

	all := m.Transactions()
	require.Len(t, all, 2)
	assert.Equal(t, done.ID, all[0].ID)

	active := m.ActiveTransactions()
	require.Len(t, active, 1)
	assert.Equal(t, pending.ID, active[0].ID)

	assert.Equal(t, 0, m.CleanupTransactions(0))

	clock.Advance(25 * time.Hour)
	assert.Equal(t, 1, m.CleanupTransactions(0))

	_, err = m.GetTransaction(done.ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	_, err = m.Batches(done.ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	_, err = m.GetTransaction(pending.ID)
	assert.NoError(t, err)
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTestManager(t, newMockRepo(), WithMetrics(metrics.New(reg)))
	ctx := context.Background()

	tx, err := m.Import(ctx, resultOf(students("1", "2")), 0, nil)
	require.NoError(t, err)
	_, err = m.RollbackTransaction(ctx, tx.ID)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "importer_transactions_total", "importer_rollbacks_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestManager_ReturnsCopies(t *testing.T) {
	m := newTestManager(t, newMockRepo())

	tx, err := m.Import(context.Background(), resultOf(students("1")), 0, nil)
	require.NoError(t, err)
	tx.CreatedRecords[0] = "tampered"

	got, err := m.GetTransaction(tx.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", got.CreatedRecords[0])
}
