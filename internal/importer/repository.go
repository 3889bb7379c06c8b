package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/importer/internal/schema"
)

// ErrRecordNotFound is returned by repositories for unknown ids and
// external ids.
var ErrRecordNotFound = errors.New("record not found")

// StoredRecord is a persisted record with its internal id.
type StoredRecord struct {
	ID     string
	Record schema.Record
}

// Repository persists the records of one entity. Each call is atomic on its
// own record.
type Repository interface {
	// FindByExternalID returns ErrRecordNotFound when no record carries
	// externalID.
	FindByExternalID(ctx context.Context, externalID string) (StoredRecord, error)
	Create(ctx context.Context, id string, rec schema.Record) error
	Update(ctx context.Context, id string, rec schema.Record) error
	Delete(ctx context.Context, id string) error
}

// TxRepository is a Repository that can run several operations in one
// persistence transaction. fn receives a Repository bound to the
// transaction; a non-nil error from fn discards all of its changes.
type TxRepository interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// Repositories resolves the repository for an entity.
type Repositories interface {
	Repository(entity schema.EntityType) (Repository, error)
}

// RepositoryMap is a fixed set of repositories keyed by entity.
type RepositoryMap map[schema.EntityType]Repository

// Repository implements Repositories.
func (m RepositoryMap) Repository(entity schema.EntityType) (Repository, error) {
	r, ok := m[entity]
	if !ok {
		return nil, fmt.Errorf("%w: no repository for %q", schema.ErrUnknownEntity, entity)
	}
	return r, nil
}
