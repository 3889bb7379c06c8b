package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/importer/internal/infer"
	"github.com/JonMunkholm/importer/internal/pipeline"
	"github.com/JonMunkholm/importer/internal/schema"
)

// mockRepo is a map-backed Repository that logs every write.
type mockRepo struct {
	mu      sync.Mutex
	field   string
	records map[string]schema.Record
	byExt   map[string]string

	failCreate map[string]bool // by external id
	failDelete map[string]bool // by id
	panicOn    string          // external id

	created []string
	updated []string
	deleted []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		field:      "student_id",
		records:    make(map[string]schema.Record),
		byExt:      make(map[string]string),
		failCreate: make(map[string]bool),
		failDelete: make(map[string]bool),
	}
}

func (m *mockRepo) ext(rec schema.Record) string {
	return infer.Stringify(rec.Get(m.field))
}

// seed stores a record that existed before any import.
func (m *mockRepo) seed(id string, rec schema.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = rec.Clone()
	m.byExt[m.ext(rec)] = id
}

func (m *mockRepo) FindByExternalID(_ context.Context, externalID string) (StoredRecord, error) {
	if m.panicOn != "" && externalID == m.panicOn {
		panic("repository exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExt[externalID]
	if !ok {
		return StoredRecord{}, ErrRecordNotFound
	}
	return StoredRecord{ID: id, Record: m.records[id].Clone()}, nil
}

func (m *mockRepo) Create(_ context.Context, id string, rec schema.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ext := m.ext(rec)
	if m.failCreate[ext] {
		return errors.New("insert rejected")
	}
	m.records[id] = rec.Clone()
	m.byExt[ext] = id
	m.created = append(m.created, id)
	return nil
}

func (m *mockRepo) Update(_ context.Context, id string, rec schema.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	m.records[id] = rec.Clone()
	m.byExt[m.ext(rec)] = id
	m.updated = append(m.updated, id)
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete[id] {
		return errors.New("delete rejected")
	}
	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	delete(m.records, id)
	delete(m.byExt, m.ext(rec))
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRepo) get(id string) (schema.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok
}

// txMockRepo adds WithTx and counts how often it was used.
type txMockRepo struct {
	*mockRepo
	txCalls int
}

func (m *txMockRepo) WithTx(_ context.Context, fn func(Repository) error) error {
	m.txCalls++
	return fn(m.mockRepo)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, repo Repository, opts ...ManagerOption) *Manager {
	t.Helper()
	return NewManager(schema.DefaultRegistry(), RepositoryMap{schema.Students: repo}, opts...)
}

func studentRecord(id, first string) schema.Record {
	return schema.Record{
		Entity: schema.Students,
		Fields: map[string]any{"student_id": id, "first_name": first, "last_name": "Test"},
	}
}

func students(ids ...string) []schema.Record {
	out := make([]schema.Record, len(ids))
	for i, id := range ids {
		out[i] = studentRecord(id, "Student "+id)
	}
	return out
}

func resultOf(records []schema.Record) *pipeline.TransformationResult {
	return &pipeline.TransformationResult{Entity: schema.Students, Data: records}
}
