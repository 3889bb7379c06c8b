// Package memory is an in-process record repository for tests, dry runs and
// the "memory" storage driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/schema"
	"github.com/JonMunkholm/importer/internal/storage"
)

func init() {
	storage.Register("memory", func(_ context.Context, _ storage.Config, schemas []schema.Schema) (importer.Repositories, func(), error) {
		return NewRepositories(schemas), func() {}, nil
	})
}

// NewRepositories creates one empty repository per schema.
func NewRepositories(schemas []schema.Schema) importer.RepositoryMap {
	repos := make(importer.RepositoryMap, len(schemas))
	for _, s := range schemas {
		repos[s.Entity] = New(s.Entity, s.ExternalIDField)
	}
	return repos
}

// Repository keeps records in maps. It implements importer.TxRepository.
type Repository struct {
	mu            sync.RWMutex
	entity        schema.EntityType
	externalField string
	records       map[string]schema.Record
	byExternal    map[string]string
}

// New creates an empty repository for entity, keyed by externalField.
func New(entity schema.EntityType, externalField string) *Repository {
	return &Repository{
		entity:        entity,
		externalField: externalField,
		records:       make(map[string]schema.Record),
		byExternal:    make(map[string]string),
	}
}

func (r *Repository) FindByExternalID(_ context.Context, externalID string) (importer.StoredRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExternal[externalID]
	if !ok {
		return importer.StoredRecord{}, importer.ErrRecordNotFound
	}
	return importer.StoredRecord{ID: id, Record: r.records[id].Clone()}, nil
}

func (r *Repository) Create(_ context.Context, id string, rec schema.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; ok {
		return fmt.Errorf("duplicate key: id %s", id)
	}
	ext := r.externalID(rec)
	if _, ok := r.byExternal[ext]; ok && ext != "" {
		return fmt.Errorf("duplicate key: %s %q", r.externalField, ext)
	}
	r.records[id] = r.own(rec)
	if ext != "" {
		r.byExternal[ext] = id
	}
	return nil
}

func (r *Repository) Update(_ context.Context, id string, rec schema.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", importer.ErrRecordNotFound, id)
	}
	ext := r.externalID(rec)
	if other, taken := r.byExternal[ext]; taken && other != id && ext != "" {
		return fmt.Errorf("duplicate key: %s %q", r.externalField, ext)
	}
	delete(r.byExternal, r.externalID(old))
	r.records[id] = r.own(rec)
	if ext != "" {
		r.byExternal[ext] = id
	}
	return nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", importer.ErrRecordNotFound, id)
	}
	delete(r.records, id)
	if ext := r.externalID(old); r.byExternal[ext] == id {
		delete(r.byExternal, ext)
	}
	return nil
}

// WithTx runs fn against a staged copy and applies it only when fn
// succeeds. The repository is locked for the duration.
func (r *Repository) WithTx(ctx context.Context, fn func(importer.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stage := New(r.entity, r.externalField)
	for id, rec := range r.records {
		stage.records[id] = rec
	}
	for ext, id := range r.byExternal {
		stage.byExternal[ext] = id
	}
	if err := fn(stage); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.records, r.byExternal = stage.records, stage.byExternal
	return nil
}

// Get returns the record stored under id.
func (r *Repository) Get(id string) (schema.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return schema.Record{}, false
	}
	return rec.Clone(), true
}

// IDs returns every stored id, sorted.
func (r *Repository) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored records.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *Repository) externalID(rec schema.Record) string {
	return storage.ExternalIDText(rec.Get(r.externalField))
}

func (r *Repository) own(rec schema.Record) schema.Record {
	c := rec.Clone()
	c.Entity = r.entity
	return c
}
