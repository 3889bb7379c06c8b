package importer

import (
	"sort"
	"sync"
	"time"
)

// TransactionStore keeps transactions and their batch history.
// Implementations must return copies so callers cannot mutate stored state.
type TransactionStore interface {
	Save(tx ImportTransaction) error
	Get(id string) (ImportTransaction, error)

	// Update applies fn to the stored transaction atomically. The change is
	// discarded when fn returns an error.
	Update(id string, fn func(*ImportTransaction) error) (ImportTransaction, error)

	List() []ImportTransaction
	AppendBatch(batch ImportBatch) error
	Batches(transactionID string) ([]ImportBatch, error)

	// Evict removes transactions that are no longer active and were last
	// updated before cutoff. It returns the number removed.
	Evict(cutoff time.Time) int
}

// MemoryStore is an in-process TransactionStore.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]ImportTransaction
	batches      map[string][]ImportBatch
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]ImportTransaction),
		batches:      make(map[string][]ImportBatch),
	}
}

func (s *MemoryStore) Save(tx ImportTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = tx.Clone()
	return nil
}

func (s *MemoryStore) Get(id string) (ImportTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return ImportTransaction{}, ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (s *MemoryStore) Update(id string, fn func(*ImportTransaction) error) (ImportTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.transactions[id]
	if !ok {
		return ImportTransaction{}, ErrTransactionNotFound
	}
	tx := stored.Clone()
	if err := fn(&tx); err != nil {
		return ImportTransaction{}, err
	}
	s.transactions[id] = tx
	return tx.Clone(), nil
}

// List returns all transactions, oldest first.
func (s *MemoryStore) List() []ImportTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ImportTransaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) AppendBatch(batch ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[batch.TransactionID]; !ok {
		return ErrTransactionNotFound
	}
	s.batches[batch.TransactionID] = append(s.batches[batch.TransactionID], batch.Clone())
	return nil
}

func (s *MemoryStore) Batches(transactionID string) ([]ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.transactions[transactionID]; !ok {
		return nil, ErrTransactionNotFound
	}
	stored := s.batches[transactionID]
	out := make([]ImportBatch, len(stored))
	for i, b := range stored {
		out[i] = b.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, tx := range s.transactions {
		if tx.Status.Active() || !tx.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.transactions, id)
		delete(s.batches, id)
		removed++
	}
	return removed
}
