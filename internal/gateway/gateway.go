// Package gateway defines the contract for the two remote tables the
// dashboard reads and writes. Implementations live in subpackages.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Table names a logical remote table.
type Table string

const (
	Orders    Table = "orders"
	Inventory Table = "inventory"
)

// Errors returned by gateway implementations.
var (
	// ErrNotFound means a record id named in an update does not exist.
	// The whole update call fails when it is returned.
	ErrNotFound = errors.New("record not found")
	// ErrRemote wraps transport and store failures.
	ErrRemote = errors.New("remote store failure")
)

// Record is a row: a store-assigned id plus its attribute values.
type Record struct {
	ID         int64          `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// Gateway is the remote table capability the core depends on.
type Gateway interface {
	// QueryAll returns every record of the table in store order.
	QueryAll(ctx context.Context, table Table) ([]Record, error)
	// UpdateRecords sets the named attributes on each identified record.
	// All-or-nothing: an unknown id fails the call with ErrNotFound.
	UpdateRecords(ctx context.Context, table Table, updates []Record) error
	// InsertRecord adds a row and returns its id.
	InsertRecord(ctx context.Context, table Table, attrs map[string]any) (int64, error)
}

// TableEdit is the set of updates applied to one table within a compound edit.
type TableEdit struct {
	Table   Table
	Updates []Record
}

// Atomic is implemented by stores that can apply updates to several tables
// as a single transaction.
type Atomic interface {
	ApplyEdits(ctx context.Context, edits []TableEdit) error
}

// NotFoundError builds an ErrNotFound for a specific id.
func NotFoundError(table Table, id int64) error {
	return fmt.Errorf("%s id %d: %w", table, id, ErrNotFound)
}

// RemoteError wraps err as an ErrRemote.
func RemoteError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrRemote, err)
}

// Clone copies an attribute map so callers can mutate it freely.
func Clone(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// Int64 reads a numeric attribute. Stores hand back JSON numbers as float64,
// drivers as int64, and some services as strings; all are accepted.
// A missing or null value reports ok=false.
func Int64(attrs map[string]any, name string) (int64, bool, error) {
	v, present := attrs[name]
	if !present || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), true, nil
	case int32:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	case float32:
		return int64(n), true, nil
	case float64:
		return int64(n), true, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("attribute %s: %w", name, err)
		}
		return i, true, nil
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("attribute %s: %w", name, err)
		}
		return i, true, nil
	}
	return 0, false, fmt.Errorf("attribute %s: unexpected type %T", name, v)
}

// String reads a text attribute; missing or null yields "".
func String(attrs map[string]any, name string) string {
	v, ok := attrs[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
