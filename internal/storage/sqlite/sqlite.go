// Package sqlite stores import records in SQLite through database/sql and
// the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/schema"
	"github.com/JonMunkholm/importer/internal/storage"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

const createTable = `CREATE TABLE IF NOT EXISTS ` + storage.Table + ` (
	id          TEXT PRIMARY KEY,
	entity      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	data        TEXT NOT NULL,
	created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (entity, external_id)
)`

func init() {
	storage.Register("sqlite", Open)
}

// Open opens the database named by cfg.DSN, creates the record table and
// returns one repository per schema.
func Open(ctx context.Context, cfg storage.Config, schemas []schema.Schema) (importer.Repositories, func(), error) {
	db, err := OpenDB(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	repos := make(importer.RepositoryMap, len(schemas))
	for _, s := range schemas {
		repos[s.Entity] = New(db, s.Entity, s.ExternalIDField)
	}
	return repos, func() { db.Close() }, nil
}

// OpenDB opens and pings dsn and creates the record table. In-memory
// databases are limited to one connection so every query sees the same
// database.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create table: %w", err)
	}
	return db, nil
}

// Repository stores the records of one entity. It implements
// importer.TxRepository.
type Repository struct {
	db            *sql.DB
	tx            *sql.Tx // set on repositories handed out by WithTx
	entity        schema.EntityType
	externalField string
	savepoint     int
}

// New creates a repository for entity over db.
func New(db *sql.DB, entity schema.EntityType, externalField string) *Repository {
	return &Repository{db: db, entity: entity, externalField: externalField}
}

func (r *Repository) conn() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (importer.StoredRecord, error) {
	var id, data string
	err := r.conn().QueryRowContext(ctx,
		`SELECT id, data FROM `+storage.Table+` WHERE entity = ? AND external_id = ?`,
		string(r.entity), externalID,
	).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return importer.StoredRecord{}, importer.ErrRecordNotFound
	}
	if err != nil {
		return importer.StoredRecord{}, fmt.Errorf("find %q: %w", externalID, err)
	}

	fields, err := storage.DecodeFields([]byte(data))
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
		_, err := db.ExecContext(ctx,
			`INSERT INTO `+storage.Table+` (id, entity, external_id, data) VALUES (?, ?, ?, ?)`,
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
		res, err := db.ExecContext(ctx,
			`UPDATE `+storage.Table+` SET external_id = ?, data = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND entity = ?`,
			r.externalID(rec), string(data), id, string(r.entity),
		)
		if err != nil {
			return err
		}
		return affected(res, id)
	})
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, func(db DBTX) error {
		res, err := db.ExecContext(ctx,
			`DELETE FROM `+storage.Table+` WHERE id = ? AND entity = ?`,
			id, string(r.entity),
		)
		if err != nil {
			return err
		}
		return affected(res, id)
	})
}

// WithTx runs fn in one database transaction, each statement under its own
// savepoint.
func (r *Repository) WithTx(ctx context.Context, fn func(importer.Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	txRepo := &Repository{tx: tx, entity: r.entity, externalField: r.externalField}
	if err := fn(txRepo); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored records of the entity.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+storage.Table+` WHERE entity = ?`, string(r.entity),
	).Scan(&n)
	return n, err
}

func (r *Repository) exec(ctx context.Context, fn func(DBTX) error) error {
	if r.tx == nil {
		return fn(r.db)
	}

	r.savepoint++
	name := fmt.Sprintf("sp_%d", r.savepoint)
	if _, err := r.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(r.tx); err != nil {
		_, _ = r.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
		return err
	}
	_, _ = r.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return nil
}

func (r *Repository) externalID(rec schema.Record) string {
	return storage.ExternalIDText(rec.Get(r.externalField))
}

func affected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", importer.ErrRecordNotFound, id)
	}
	return nil
}
