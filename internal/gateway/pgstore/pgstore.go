// Package pgstore keeps both remote tables in one PostgreSQL table of JSONB
// attribute documents keyed by (table_name, id).
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
)

// Schema creates the backing table.
const Schema = `
CREATE TABLE IF NOT EXISTS feature_records (
    table_name TEXT   NOT NULL,
    id         BIGINT NOT NULL,
    attributes JSONB  NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (table_name, id)
)`

const (
	queryAllSQL = `SELECT id, attributes FROM feature_records WHERE table_name = $1 ORDER BY id`
	// Attributes are merged; keys not named in the update keep their value.
	updateSQL = `UPDATE feature_records SET attributes = attributes || $3::jsonb WHERE table_name = $1 AND id = $2`
	lockSQL   = `SELECT pg_advisory_xact_lock(hashtext($1))`
	insertSQL = `
INSERT INTO feature_records (table_name, id, attributes)
SELECT $1, COALESCE(MAX(id), 0) + 1, $2::jsonb FROM feature_records WHERE table_name = $1
RETURNING id`
)

// DB is the subset of *pgxpool.Pool used by the store.
// Satisfied by *pgxpool.Pool; narrow interface for testability.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements gateway.Gateway and gateway.Atomic.
type Store struct {
	db DB
}

var (
	_ gateway.Gateway = (*Store)(nil)
	_ gateway.Atomic  = (*Store)(nil)
)

// New wraps an open pool.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool, verifies it and creates the schema. The caller owns
// the returned pool.
func Connect(ctx context.Context, url string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate creates the backing table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate feature_records: %w", err)
	}
	return nil
}

// QueryAll implements gateway.Gateway.
func (s *Store) QueryAll(ctx context.Context, t gateway.Table) ([]gateway.Record, error) {
	op := "query " + string(t)
	rows, err := s.db.Query(ctx, queryAllSQL, string(t))
	if err != nil {
		return nil, gateway.RemoteError(op, err)
	}
	defer rows.Close()

	var out []gateway.Record
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, gateway.RemoteError(op, err)
		}
		attrs := map[string]any{}
		if err := json.Unmarshal(raw, &attrs); err != nil {
			return nil, gateway.RemoteError(op, fmt.Errorf("record %d: %w", id, err))
		}
		out = append(out, gateway.Record{ID: id, Attributes: attrs})
	}
	if err := rows.Err(); err != nil {
		return nil, gateway.RemoteError(op, err)
	}
	return out, nil
}

// UpdateRecords implements gateway.Gateway.
func (s *Store) UpdateRecords(ctx context.Context, t gateway.Table, updates []gateway.Record) error {
	return s.ApplyEdits(ctx, []gateway.TableEdit{{Table: t, Updates: updates}})
}

// ApplyEdits implements gateway.Atomic. All updates run in one transaction;
// an unknown id rolls everything back.
func (s *Store) ApplyEdits(ctx context.Context, edits []gateway.TableEdit) error {
	const op = "apply edits"
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return gateway.RemoteError(op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, e := range edits {
		for _, u := range e.Updates {
			doc, err := json.Marshal(u.Attributes)
			if err != nil {
				return gateway.RemoteError(op, err)
			}
			tag, err := tx.Exec(ctx, updateSQL, string(e.Table), u.ID, string(doc))
			if err != nil {
				return gateway.RemoteError(op, err)
			}
			if tag.RowsAffected() == 0 {
				return gateway.NotFoundError(e.Table, u.ID)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return gateway.RemoteError(op, err)
	}
	return nil
}

// InsertRecord implements gateway.Gateway. Ids are allocated per table under
// an advisory lock.
func (s *Store) InsertRecord(ctx context.Context, t gateway.Table, attrs map[string]any) (int64, error) {
	op := "insert " + string(t)
	doc, err := json.Marshal(attrs)
	if err != nil {
		return 0, gateway.RemoteError(op, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, lockSQL, string(t)); err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	var id int64
	if err := tx.QueryRow(ctx, insertSQL, string(t), string(doc)).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, gateway.RemoteError(op, errors.New("insert returned no id"))
		}
		return 0, gateway.RemoteError(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	return id, nil
}
