package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the schemas available to a pipeline.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[EntityType]Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[EntityType]Schema)}
}

// DefaultRegistry returns a registry with the built-in student, book and
// equipment schemas.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Schema{StudentSchema, BookSchema, EquipmentSchema} {
		if err := r.Register(s); err != nil {
			panic(err) // built-in schemas are static
		}
	}
	return r
}

// Register adds a schema. The schema is validated and copied; it fails if
// the entity is already registered.
func (r *Registry) Register(s Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.Entity]; exists {
		return fmt.Errorf("schema already registered: %s", s.Entity)
	}
	r.schemas[s.Entity] = s.clone()
	return nil
}

// Get returns a copy of the schema for entity.
func (r *Registry) Get(entity EntityType) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[entity]
	if !ok {
		return Schema{}, false
	}
	return s.clone(), true
}

// Lookup resolves a user-supplied entity name to its schema.
func (r *Registry) Lookup(name string) (Schema, error) {
	entity, err := ParseEntityType(name)
	if err != nil {
		if s, ok := r.Get(EntityType(name)); ok {
			return s, nil
		}
		return Schema{}, err
	}
	s, ok := r.Get(entity)
	if !ok {
		return Schema{}, fmt.Errorf("%w: no schema registered for %q", ErrUnknownEntity, entity)
	}
	return s, nil
}

// All returns every registered schema sorted by entity.
func (r *Registry) All() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		result = append(result, s.clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Entity < result[j].Entity
	})

	return result
}

// Count returns the number of registered schemas.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}
