// Package sqlitestore keeps both remote tables in a single SQLite table of
// JSON attribute documents. It suits single-node deployments and demos.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
)

const schema = `
CREATE TABLE IF NOT EXISTS feature_records (
    table_name TEXT    NOT NULL,
    id         INTEGER NOT NULL,
    attributes TEXT    NOT NULL DEFAULT '{}',
    PRIMARY KEY (table_name, id)
);`

type recordRow struct {
	ID         int64  `db:"id"`
	Attributes string `db:"attributes"`
}

// Store implements gateway.Gateway and gateway.Atomic.
type Store struct {
	db *sqlx.DB
}

var (
	_ gateway.Gateway = (*Store)(nil)
	_ gateway.Atomic  = (*Store)(nil)
)

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps db and creates the schema.
func New(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate feature_records: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// QueryAll implements gateway.Gateway.
func (s *Store) QueryAll(ctx context.Context, t gateway.Table) ([]gateway.Record, error) {
	op := "query " + string(t)
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, attributes FROM feature_records WHERE table_name = ? ORDER BY id`, string(t))
	if err != nil {
		return nil, gateway.RemoteError(op, err)
	}

	out := make([]gateway.Record, 0, len(rows))
	for _, r := range rows {
		attrs, err := decode(r.Attributes)
		if err != nil {
			return nil, gateway.RemoteError(op, fmt.Errorf("record %d: %w", r.ID, err))
		}
		out = append(out, gateway.Record{ID: r.ID, Attributes: attrs})
	}
	return out, nil
}

// UpdateRecords implements gateway.Gateway.
func (s *Store) UpdateRecords(ctx context.Context, t gateway.Table, updates []gateway.Record) error {
	return s.ApplyEdits(ctx, []gateway.TableEdit{{Table: t, Updates: updates}})
}

// ApplyEdits implements gateway.Atomic. Attributes are merged into the stored
// document; an unknown id rolls the whole transaction back.
func (s *Store) ApplyEdits(ctx context.Context, edits []gateway.TableEdit) error {
	const op = "apply edits"
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return gateway.RemoteError(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range edits {
		for _, u := range e.Updates {
			var current string
			err := tx.GetContext(ctx, &current,
				`SELECT attributes FROM feature_records WHERE table_name = ? AND id = ?`, string(e.Table), u.ID)
			if errors.Is(err, sql.ErrNoRows) {
				return gateway.NotFoundError(e.Table, u.ID)
			}
			if err != nil {
				return gateway.RemoteError(op, err)
			}

			attrs, err := decode(current)
			if err != nil {
				return gateway.RemoteError(op, fmt.Errorf("record %d: %w", u.ID, err))
			}
			for k, v := range u.Attributes {
				attrs[k] = v
			}
			doc, err := json.Marshal(attrs)
			if err != nil {
				return gateway.RemoteError(op, err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE feature_records SET attributes = ? WHERE table_name = ? AND id = ?`,
				string(doc), string(e.Table), u.ID); err != nil {
				return gateway.RemoteError(op, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return gateway.RemoteError(op, err)
	}
	return nil
}

// InsertRecord implements gateway.Gateway. Ids are allocated per table.
func (s *Store) InsertRecord(ctx context.Context, t gateway.Table, attrs map[string]any) (int64, error) {
	op := "insert " + string(t)
	doc, err := json.Marshal(attrs)
	if err != nil {
		return 0, gateway.RemoteError(op, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	if err := tx.GetContext(ctx, &id,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM feature_records WHERE table_name = ?`, string(t)); err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO feature_records (table_name, id, attributes) VALUES (?, ?, ?)`,
		string(t), id, string(doc)); err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, gateway.RemoteError(op, err)
	}
	return id, nil
}

func decode(doc string) (map[string]any, error) {
	attrs := map[string]any{}
	if err := json.Unmarshal([]byte(doc), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
