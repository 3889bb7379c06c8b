package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/importer/internal/logging"
	"github.com/JonMunkholm/importer/internal/metrics"
	"github.com/JonMunkholm/importer/internal/pipeline"
	"github.com/JonMunkholm/importer/internal/schema"
)

// Manager drives import transactions.
//
// Different transactions may be processed concurrently. A transaction can
// only be processed once: the move to in_progress is atomic, so a second
// ProcessTransaction call for the same id fails with ErrInvalidTransition.
type Manager struct {
	registry *schema.Registry
	repos    Repositories
	store    TransactionStore
	metrics  *metrics.Collectors
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStore sets the transaction store (default: NewMemoryStore()).
func WithStore(s TransactionStore) ManagerOption {
	return func(m *Manager) { m.store = s }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(c *metrics.Collectors) ManagerOption {
	return func(m *Manager) { m.metrics = c }
}

// WithClock overrides time.Now for timestamps and eviction.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager persisting through repos.
func NewManager(registry *schema.Registry, repos Repositories, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		repos:    repos,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	return m
}

// CreateTransaction registers a pending transaction for entity.
func (m *Manager) CreateTransaction(ctx context.Context, entity schema.EntityType, totalRecords int, metadata map[string]any) (*ImportTransaction, error) {
	s, err := m.registry.Lookup(string(entity))
	if err != nil {
		return nil, err
	}

	now := m.now()
	tx := ImportTransaction{
		ID:             uuid.NewString(),
		Entity:         s.Entity,
		Status:         StatusPending,
		TotalRecords:   totalRecords,
		CreatedRecords: []string{},
		UpdatedRecords: []string{},
		Errors:         []RecordError{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(metadata) > 0 {
		tx.Metadata = make(map[string]any, len(metadata))
		for k, v := range metadata {
			tx.Metadata[k] = v
		}
	}
	if err := m.store.Save(tx); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	logging.WithFields(ctx, "transaction_id", tx.ID, "entity", tx.Entity).
		Info("transaction created", "total_records", totalRecords)
	return &tx, nil
}

// Import creates a transaction for result and processes it.
func (m *Manager) Import(ctx context.Context, result *pipeline.TransformationResult, batchSize int, metadata map[string]any) (*ImportTransaction, error) {
	if result == nil {
		return nil, errors.New("import: nil transformation result")
	}
	tx, err := m.CreateTransaction(ctx, result.Entity, len(result.Data), metadata)
	if err != nil {
		return nil, err
	}
	return m.ProcessTransaction(ctx, tx.ID, result, batchSize)
}

// ProcessTransaction persists result.Data in batches of batchSize
// (DefaultBatchSize when <= 0).
//
// Records are looked up by the schema's external id field: existing records
// are updated, new ones are created under a generated id. A failing record is
// recorded and skipped. The final status is completed when no record failed,
// failed otherwise.
//
// Cancellation is honored between batches. Cancellation, a missing
// repository or a panic inside a batch fail the whole transaction; the
// failed transaction is returned together with the error and keeps what was
// persisted so it can be rolled back.
func (m *Manager) ProcessTransaction(ctx context.Context, id string, result *pipeline.TransformationResult, batchSize int) (*ImportTransaction, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var records []schema.Record
	if result != nil {
		records = result.Data
	}

	tx, err := m.store.Update(id, func(tx *ImportTransaction) error {
		if result != nil && result.Entity != "" && result.Entity != tx.Entity {
			return fmt.Errorf("cannot import %s records into a %s transaction", result.Entity, tx.Entity)
		}
		if err := tx.setStatus(StatusInProgress, m.now()); err != nil {
			return err
		}
		if tx.TotalRecords == 0 {
			tx.TotalRecords = len(records)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("process transaction %s: %w", id, err)
	}

	r := &run{
		m:           m,
		tx:          tx,
		log:         logging.WithFields(ctx, "transaction_id", id, "entity", tx.Entity),
		created:     make(map[string]bool),
		snapshotted: make(map[string]bool),
	}

	if r.schema, err = m.registry.Lookup(string(tx.Entity)); err != nil {
		return r.abort(err)
	}
	if r.repo, err = m.repos.Repository(tx.Entity); err != nil {
		return r.abort(err)
	}

	batches := pipeline.Chunk(records, batchSize)
	r.log.Info("import started", "records", len(records), "batches", len(batches), "batch_size", batchSize)

	offset := 0
	for i, recs := range batches {
		if err := ctx.Err(); err != nil {
			return r.abort(fmt.Errorf("before batch %d: %w", i+1, err))
		}

		batch, err := r.batch(ctx, i+1, offset, recs)
		r.tx.Batches++
		if serr := m.store.AppendBatch(batch); serr != nil {
			r.log.Error("save batch failed", "batch", batch.Number, "error", serr)
		}
		if err != nil {
			return r.abort(err)
		}
		offset += len(recs)

		r.checkErrorRate()
		r.tx.UpdatedAt = m.now()
		if err := m.store.Save(r.tx); err != nil {
			r.log.Error("save transaction failed", "error", err)
		}
	}

	return r.finish()
}

// run is the mutable state of one ProcessTransaction call.
type run struct {
	m      *Manager
	tx     ImportTransaction
	schema schema.Schema
	repo   Repository
	log    *slog.Logger

	created     map[string]bool
	snapshotted map[string]bool
}

// batch persists one chunk. A panic is returned as an error; records
// handled before it stay recorded on the transaction.
func (r *run) batch(ctx context.Context, number, offset int, recs []schema.Record) (b ImportBatch, err error) {
	b = ImportBatch{
		ID:               uuid.NewString(),
		TransactionID:    r.tx.ID,
		Number:           number,
		Records:          recs,
		CreatedRecordIDs: []string{},
		UpdatedRecordIDs: []string{},
		Errors:           []RecordError{},
		StartedAt:        r.m.now(),
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("batch %d: panic: %v", number, p)
			b.Status = BatchFailed
		} else {
			b.Status = batchStatus(len(recs), len(b.Errors))
		}
		b.FinishedAt = r.m.now()
	}()

	for j, rec := range recs {
		index := offset + j + 1
		ext := rec.ExternalID(r.schema)

		id, updated, err := r.persist(ctx, ext, rec)
		r.tx.ProcessedRecords++
		if err != nil {
			re := RecordError{Batch: number, Index: index, ExternalID: ext, Message: err.Error()}
			b.Errors = append(b.Errors, re)
			r.tx.Errors = append(r.tx.Errors, re)
			r.tx.ErrorRecords++
			continue
		}

		r.tx.SuccessRecords++
		if updated {
			b.UpdatedRecordIDs = append(b.UpdatedRecordIDs, id)
			r.tx.UpdatedRecords = append(r.tx.UpdatedRecords, id)
		} else {
			b.CreatedRecordIDs = append(b.CreatedRecordIDs, id)
			r.tx.CreatedRecords = append(r.tx.CreatedRecords, id)
		}
	}

	r.log.Debug("batch processed",
		"batch", number,
		"created", len(b.CreatedRecordIDs),
		"updated", len(b.UpdatedRecordIDs),
		"errors", len(b.Errors),
	)
	return b, nil
}

// persist creates or updates one record and returns its id.
func (r *run) persist(ctx context.Context, ext string, rec schema.Record) (string, bool, error) {
	if ext == "" {
		return "", false, fmt.Errorf("%w: field %q is empty", ErrMissingExternalID, r.schema.ExternalIDField)
	}
	rec.Entity = r.tx.Entity

	existing, err := r.repo.FindByExternalID(ctx, ext)
	switch {
	case err == nil:
		if err := r.repo.Update(ctx, existing.ID, rec); err != nil {
			return "", false, fmt.Errorf("update %s: %w", existing.ID, err)
		}
		// Records created by this transaction are deleted on rollback,
		// so only records that existed before need their old value.
		if !r.created[existing.ID] && !r.snapshotted[existing.ID] {
			r.tx.Snapshots = append(r.tx.Snapshots, Snapshot{ID: existing.ID, Record: existing.Record.Clone()})
			r.snapshotted[existing.ID] = true
		}
		return existing.ID, true, nil

	case errors.Is(err, ErrRecordNotFound):
		id := uuid.NewString()
		if err := r.repo.Create(ctx, id, rec); err != nil {
			return "", false, fmt.Errorf("create: %w", err)
		}
		r.created[id] = true
		return id, false, nil

	default:
		return "", false, fmt.Errorf("find %q: %w", ext, err)
	}
}

func (r *run) checkErrorRate() {
	tx := &r.tx
	if tx.ProcessedRecords == 0 || tx.ErrorRecords <= rollbackMinErrors {
		return
	}
	rate := float64(tx.ErrorRecords) / float64(tx.ProcessedRecords)
	if rate <= rollbackErrorRate {
		return
	}
	tx.RollbackRecommended = true
	r.log.Warn("high error rate, rollback recommended",
		"error_records", tx.ErrorRecords,
		"processed_records", tx.ProcessedRecords,
		"error_rate", rate,
	)
}

func (r *run) finish() (*ImportTransaction, error) {
	next := StatusCompleted
	if r.tx.ErrorRecords > 0 {
		next = StatusFailed
	}
	if err := r.tx.setStatus(next, r.m.now()); err != nil {
		return nil, err
	}
	if err := r.m.store.Save(r.tx); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}
	r.observe()

	r.log.Info("import completed",
		"status", r.tx.Status,
		"created", len(r.tx.CreatedRecords),
		"updated", len(r.tx.UpdatedRecords),
		"errors", r.tx.ErrorRecords,
		"rollback_recommended", r.tx.RollbackRecommended,
	)
	tx := r.tx.Clone()
	return &tx, nil
}

// abort fails the transaction with a transaction-level error.
func (r *run) abort(cause error) (*ImportTransaction, error) {
	r.tx.Error = cause.Error()
	if err := r.tx.setStatus(StatusFailed, r.m.now()); err != nil {
		return nil, errors.Join(cause, err)
	}
	if err := r.m.store.Save(r.tx); err != nil {
		r.log.Error("save transaction failed", "error", err)
	}
	r.observe()

	r.log.Error("import aborted", "error", cause, "processed_records", r.tx.ProcessedRecords)
	tx := r.tx.Clone()
	return &tx, fmt.Errorf("process transaction %s: %w", r.tx.ID, cause)
}

func (r *run) observe() {
	r.m.metrics.ObserveTransaction(string(r.tx.Entity), string(r.tx.Status),
		len(r.tx.CreatedRecords), len(r.tx.UpdatedRecords), r.tx.ErrorRecords)
}

func batchStatus(total, failed int) BatchStatus {
	switch {
	case failed == 0:
		return BatchCompleted
	case failed < total:
		return BatchPartial
	default:
		return BatchFailed
	}
}

// RollbackTransaction reverts a completed or failed transaction.
//
// Updated records get their prior values back, newest update first; created
// records are then deleted. When the repository implements TxRepository
// all of it runs in one persistence transaction. A failing restore or delete
// is recorded and the rest continue. Records already gone count as deleted.
//
// The transaction becomes rolled_back only when every step succeeded, so a
// partial rollback can be retried.
func (m *Manager) RollbackTransaction(ctx context.Context, id string) (*RollbackResult, error) {
	start := time.Now()

	tx, err := m.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("rollback %s: %w", id, err)
	}
	if !tx.Status.CanTransition(StatusRolledBack) {
		return nil, fmt.Errorf("rollback %s: %w: %s to %s", id, ErrInvalidTransition, tx.Status, StatusRolledBack)
	}
	repo, err := m.repos.Repository(tx.Entity)
	if err != nil {
		return nil, fmt.Errorf("rollback %s: %w", id, err)
	}

	log := logging.WithFields(ctx, "transaction_id", id, "entity", tx.Entity)
	res := &RollbackResult{TransactionID: id, Errors: []string{}}

	revert := func(repo Repository) error {
		for i := len(tx.Snapshots) - 1; i >= 0; i-- {
			snap := tx.Snapshots[i]
			if err := repo.Update(ctx, snap.ID, snap.Record); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("restore %s: %v", snap.ID, err))
				continue
			}
			res.RestoredRecords++
		}
		for _, rid := range tx.CreatedRecords {
			if err := repo.Delete(ctx, rid); err != nil && !errors.Is(err, ErrRecordNotFound) {
				res.Errors = append(res.Errors, fmt.Sprintf("delete %s: %v", rid, err))
				continue
			}
			res.DeletedRecords++
		}
		return nil
	}

	if txr, ok := repo.(TxRepository); ok {
		if err := txr.WithTx(ctx, revert); err != nil {
			res.DeletedRecords, res.RestoredRecords = 0, 0
			res.Errors = append(res.Errors, fmt.Sprintf("commit: %v", err))
		}
	} else {
		_ = revert(repo)
	}

	res.Success = len(res.Errors) == 0
	res.Duration = time.Since(start)
	m.metrics.ObserveRollback(string(tx.Entity), res.Success)

	if !res.Success {
		log.Warn("rollback incomplete", "errors", len(res.Errors), "deleted", res.DeletedRecords, "restored", res.RestoredRecords)
		return res, nil
	}

	if _, err := m.store.Update(id, func(tx *ImportTransaction) error {
		return tx.setStatus(StatusRolledBack, m.now())
	}); err != nil {
		return res, fmt.Errorf("rollback %s: %w", id, err)
	}
	log.Info("transaction rolled back", "deleted", res.DeletedRecords, "restored", res.RestoredRecords)
	return res, nil
}

// GetTransaction returns a copy of the transaction.
func (m *Manager) GetTransaction(id string) (*ImportTransaction, error) {
	tx, err := m.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return &tx, nil
}

// Transactions returns every stored transaction, oldest first.
func (m *Manager) Transactions() []ImportTransaction {
	return m.store.List()
}

// ActiveTransactions returns the pending and in-progress transactions.
func (m *Manager) ActiveTransactions() []ImportTransaction {
	var out []ImportTransaction
	for _, tx := range m.store.List() {
		if tx.Status.Active() {
			out = append(out, tx)
		}
	}
	return out
}

// Batches returns the batch history of a transaction.
func (m *Manager) Batches(id string) ([]ImportBatch, error) {
	batches, err := m.store.Batches(id)
	if err != nil {
		return nil, fmt.Errorf("batches %s: %w", id, err)
	}
	return batches, nil
}

// CleanupTransactions evicts finished transactions last updated more than
// olderThan ago (DefaultRetention when <= 0) and returns how many were
// removed. Active transactions are never evicted.
func (m *Manager) CleanupTransactions(olderThan time.Duration) int {
	if olderThan <= 0 {
		olderThan = DefaultRetention
	}
	return m.store.Evict(m.now().Add(-olderThan))
}
