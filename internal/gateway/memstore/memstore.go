// Package memstore is an in-process gateway used for local development and
// tests. Records are kept in id order; every write is counted.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
)

// WriteHook is consulted before every write. A non-nil error aborts the write
// with that error, leaving the store untouched.
type WriteHook func(table gateway.Table, op string) error

type table struct {
	rows   map[int64]map[string]any
	nextID int64
}

// Store implements gateway.Gateway and gateway.Atomic.
type Store struct {
	mu     sync.Mutex
	tables map[gateway.Table]*table
	writes map[gateway.Table]int
	hook   WriteHook
}

var (
	_ gateway.Gateway = (*Store)(nil)
	_ gateway.Atomic  = (*Store)(nil)
)

// New creates an empty store with the Orders and Inventory tables.
func New() *Store {
	return &Store{
		tables: map[gateway.Table]*table{
			gateway.Orders:    {rows: map[int64]map[string]any{}, nextID: 1},
			gateway.Inventory: {rows: map[int64]map[string]any{}, nextID: 1},
		},
		writes: map[gateway.Table]int{},
	}
}

// SetWriteHook installs a hook for fault injection. Pass nil to remove it.
func (s *Store) SetWriteHook(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Writes returns how many successful write calls touched the table.
func (s *Store) Writes(t gateway.Table) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[t]
}

// Put stores a record under an explicit id, bypassing write accounting.
// Used to seed fixtures with stable ids.
func (s *Store) Put(t gateway.Table, id int64, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tb := s.table(t)
	tb.rows[id] = gateway.Clone(attrs)
	if id >= tb.nextID {
		tb.nextID = id + 1
	}
}

// Delete removes a record, bypassing write accounting.
func (s *Store) Delete(t gateway.Table, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table(t).rows, id)
}

// Get returns a copy of one record.
func (s *Store) Get(t gateway.Table, id int64) (gateway.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.table(t).rows[id]
	if !ok {
		return gateway.Record{}, false
	}
	return gateway.Record{ID: id, Attributes: gateway.Clone(attrs)}, true
}

// QueryAll implements gateway.Gateway.
func (s *Store) QueryAll(ctx context.Context, t gateway.Table) ([]gateway.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, gateway.RemoteError("query "+string(t), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tb := s.table(t)
	ids := make([]int64, 0, len(tb.rows))
	for id := range tb.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]gateway.Record, len(ids))
	for i, id := range ids {
		out[i] = gateway.Record{ID: id, Attributes: gateway.Clone(tb.rows[id])}
	}
	return out, nil
}

// UpdateRecords implements gateway.Gateway.
func (s *Store) UpdateRecords(ctx context.Context, t gateway.Table, updates []gateway.Record) error {
	return s.ApplyEdits(ctx, []gateway.TableEdit{{Table: t, Updates: updates}})
}

// ApplyEdits implements gateway.Atomic. Every id is checked before anything
// is written.
func (s *Store) ApplyEdits(ctx context.Context, edits []gateway.TableEdit) error {
	if err := ctx.Err(); err != nil {
		return gateway.RemoteError("apply edits", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range edits {
		if s.hook != nil {
			if err := s.hook(e.Table, "update"); err != nil {
				return err
			}
		}
		tb := s.table(e.Table)
		for _, u := range e.Updates {
			if _, ok := tb.rows[u.ID]; !ok {
				return gateway.NotFoundError(e.Table, u.ID)
			}
		}
	}

	for _, e := range edits {
		tb := s.table(e.Table)
		for _, u := range e.Updates {
			row := tb.rows[u.ID]
			for k, v := range u.Attributes {
				row[k] = v
			}
		}
		s.writes[e.Table]++
	}
	return nil
}

// InsertRecord implements gateway.Gateway.
func (s *Store) InsertRecord(ctx context.Context, t gateway.Table, attrs map[string]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, gateway.RemoteError("insert "+string(t), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hook != nil {
		if err := s.hook(t, "insert"); err != nil {
			return 0, err
		}
	}
	tb := s.table(t)
	id := tb.nextID
	tb.nextID++
	tb.rows[id] = gateway.Clone(attrs)
	s.writes[t]++
	return id, nil
}

func (s *Store) table(t gateway.Table) *table {
	tb, ok := s.tables[t]
	if !ok {
		tb = &table{rows: map[int64]map[string]any{}, nextID: 1}
		s.tables[t] = tb
	}
	return tb
}
