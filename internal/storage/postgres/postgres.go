// Package postgres stores import records in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/schema"
	"github.com/JonMunkholm/importer/internal/storage"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

const createTable = `CREATE TABLE IF NOT EXISTS ` + storage.Table + ` (
	id          TEXT PRIMARY KEY,
	entity      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (entity, external_id)
)`

func init() {
	storage.Register("postgres", Open)
}

// Open connects a pool, creates the record table and returns one
// repository per schema.
func Open(ctx context.Context, cfg storage.Config, schemas []schema.Schema) (importer.Repositories, func(), error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	repos := make(importer.RepositoryMap, len(schemas))
	for _, s := range schemas {
		repos[s.Entity] = New(pool, s.Entity, s.ExternalIDField)
	}
	return repos, pool.Close, nil
}

// EnsureSchema creates the record table if it does not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// Repository stores the records of one entity. It implements
// importer.TxRepository.
type Repository struct {
	pool          *pgxpool.Pool
	tx            pgx.Tx // set on repositories handed out by WithTx
	entity        schema.EntityType
	externalField string
	savepoint     int
}

// New creates a repository for entity over pool.
func New(pool *pgxpool.Pool, entity schema.EntityType, externalField string) *Repository {
	return &Repository{pool: pool, entity: entity, externalField: externalField}
}

func (r *Repository) db() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (importer.StoredRecord, error) {
	var (
		id   string
		data []byte
	)
	err := r.db().QueryRow(ctx,
		`SELECT id, data FROM `+storage.Table+` WHERE entity = $1 AND external_id = $2`,
		string(r.entity), externalID,
	).Scan(&id, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return importer.StoredRecord{}, importer.ErrRecordNotFound
	}
	if err != nil {
		return importer.StoredRecord{}, fmt.Errorf("find %q: %w", externalID, err)
	}

	fields, err := storage.DecodeFields(data)
	if err != nil {
		return importer.StoredRecord{}, err
	}
	return importer.StoredRecord{ID: id, Record: schema.Record{Entity: r.entity, Fields: fields}}, nil
}

func (r *Repository) Create(ctx context.Context, id string, rec schema.Record) error {
	data, err := storage.EncodeFields(rec.Fields)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(db DBTX) error {
		_, err := db.Exec(ctx,
			`INSERT INTO `+storage.Table+` (id, entity, external_id, data) VALUES ($1, $2, $3, $4)`,
			id, string(r.entity), r.externalID(rec), string(data),
		)
		return err
	})
}

func (r *Repository) Update(ctx context.Context, id string, rec schema.Record) error {
	data, err := storage.EncodeFields(rec.Fields)
	if err != nil {
		return err
	}
	return r.exec(ctx, func(db DBTX) error {
		tag, err := db.Exec(ctx,
			`UPDATE `+storage.Table+` SET external_id = $3, data = $4, updated_at = now() WHERE id = $1 AND entity = $2`,
			id, string(r.entity), r.externalID(rec), string(data),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", importer.ErrRecordNotFound, id)
		}
		return nil
	})
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, func(db DBTX) error {
		tag, err := db.Exec(ctx,
			`DELETE FROM `+storage.Table+` WHERE id = $1 AND entity = $2`,
			id, string(r.entity),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", importer.ErrRecordNotFound, id)
		}
		return nil
	})
}

// WithTx runs fn in one database transaction. Inside it every statement
// runs under its own savepoint, so a failing statement is undone without
// aborting the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(importer.Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := &Repository{tx: tx, entity: r.entity, externalField: r.externalField}
	if err := fn(txRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, fn func(DBTX) error) error {
	if r.tx == nil {
		return fn(r.pool)
	}

	r.savepoint++
	name := fmt.Sprintf("sp_%d", r.savepoint)
	if _, err := r.tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(r.tx); err != nil {
		_, _ = r.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name)
		return err
	}
	_, _ = r.tx.Exec(ctx, "RELEASE SAVEPOINT "+name)
	return nil
}

func (r *Repository) externalID(rec schema.Record) string {
	return storage.ExternalIDText(rec.Get(r.externalField))
}
