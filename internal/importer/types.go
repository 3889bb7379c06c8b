// Package importer persists pipeline output in tracked, reversible import
// transactions.
//
// A transaction moves through
//
//	pending → in_progress → completed | failed → rolled_back
//
// Records are written batch by batch through a Repository. Each record is
// created or updated depending on whether its external identifier already
// exists; per-record failures are collected and never stop the batch.
// Rollback deletes the records the transaction created and restores the
// prior values of the records it updated.
package importer

import (
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/importer/internal/schema"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrMissingExternalID   = errors.New("record has no external id")
)

const (
	DefaultBatchSize = 50
	DefaultRetention = 24 * time.Hour

	// rollbackMinErrors and rollbackErrorRate decide when a running import
	// is flagged for rollback. Both must be exceeded.
	rollbackMinErrors = 10
	rollbackErrorRate = 0.5
)

// Status is the lifecycle state of an import transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRolledBack},
	StatusFailed:     {StatusRolledBack},
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the transaction has not reached a final state.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// RecordError is a failure to persist one record.
type RecordError struct {
	Batch      int    `json:"batch"`
	Index      int    `json:"index"` // 1-based position in the transaction's data
	ExternalID string `json:"externalId,omitempty"`
	Message    string `json:"message"`
}

func (e RecordError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("record %d (%s): %s", e.Index, e.ExternalID, e.Message)
	}
	return fmt.Sprintf("record %d: %s", e.Index, e.Message)
}

// Snapshot is the value a record held before the transaction updated it.
type Snapshot struct {
	ID     string        `json:"id"`
	Record schema.Record `json:"record"`
}

// ImportTransaction tracks one import from creation to rollback.
//
// SuccessRecords + ErrorRecords == ProcessedRecords at every save.
type ImportTransaction struct {
	ID                  string            `json:"id"`
	Entity              schema.EntityType `json:"entityType"`
	Status              Status            `json:"status"`
	TotalRecords        int               `json:"totalRecords"`
	ProcessedRecords    int               `json:"processedRecords"`
	SuccessRecords      int               `json:"successRecords"`
	ErrorRecords        int               `json:"errorRecords"`
	CreatedRecords      []string          `json:"createdRecords"`
	UpdatedRecords      []string          `json:"updatedRecords"`
	Errors              []RecordError     `json:"errors"`
	Metadata            map[string]any    `json:"metadata,omitempty"`
	RollbackRecommended bool              `json:"rollbackRecommended"`
	Error               string            `json:"error,omitempty"` // Transaction-level failure
	Batches             int               `json:"batches"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	CompletedAt         time.Time         `json:"completedAt,omitempty"`

	// Snapshots hold pre-update values in update order.
	Snapshots []Snapshot `json:"-"`
}

// Clone returns a deep copy.
func (t ImportTransaction) Clone() ImportTransaction {
	c := t
	c.CreatedRecords = append([]string{}, t.CreatedRecords...)
	c.UpdatedRecords = append([]string{}, t.UpdatedRecords...)
	c.Errors = append([]RecordError{}, t.Errors...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.Snapshots != nil {
		c.Snapshots = make([]Snapshot, len(t.Snapshots))
		for i, s := range t.Snapshots {
			c.Snapshots[i] = Snapshot{ID: s.ID, Record: s.Record.Clone()}
		}
	}
	return c
}

func (t *ImportTransaction) setStatus(next Status, now time.Time) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = now
	if next == StatusCompleted || next == StatusFailed {
		t.CompletedAt = now
	}
	return nil
}

// BatchStatus summarizes how a batch went.
type BatchStatus string

const (
	BatchCompleted BatchStatus = "completed"
	BatchPartial   BatchStatus = "partial"
	BatchFailed    BatchStatus = "failed"
)

// ImportBatch is one chunk of records persisted together.
type ImportBatch struct {
	ID               string          `json:"id"`
	TransactionID    string          `json:"transactionId"`
	Number           int             `json:"number"`
	Records          []schema.Record `json:"records"`
	Status           BatchStatus     `json:"status"`
	CreatedRecordIDs []string        `json:"createdRecordIds"`
	UpdatedRecordIDs []string        `json:"updatedRecordIds"`
	Errors           []RecordError   `json:"errors"`
	StartedAt        time.Time       `json:"startedAt"`
	FinishedAt       time.Time       `json:"finishedAt"`
}

// Clone returns a deep copy.
func (b ImportBatch) Clone() ImportBatch {
	c := b
	c.Records = make([]schema.Record, len(b.Records))
	for i, r := range b.Records {
		c.Records[i] = r.Clone()
	}
	c.CreatedRecordIDs = append([]string{}, b.CreatedRecordIDs...)
	c.UpdatedRecordIDs = append([]string{}, b.UpdatedRecordIDs...)
	c.Errors = append([]RecordError{}, b.Errors...)
	return c
}

// RollbackResult reports what a rollback reverted.
type RollbackResult struct {
	TransactionID   string        `json:"transactionId"`
	Success         bool          `json:"success"`
	DeletedRecords  int           `json:"deletedRecords"`
	RestoredRecords int           `json:"restoredRecords"`
	Errors          []string      `json:"errors"`
	Duration        time.Duration `json:"duration"`
}
