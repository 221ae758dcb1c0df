package fulfillment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
)

// Errors returned by the engine.
var (
	// ErrUnknownMappingKey is a product or inventory name with no counterpart
	// in the catalog or inventory table. It is a data/config defect.
	ErrUnknownMappingKey = catalog.ErrUnknownKey
	// ErrRecordNotFound means the order or inventory row vanished between
	// fetch and update.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRemoteWriteFailed wraps store failures on write.
	ErrRemoteWriteFailed = errors.New("remote write failed")
	// ErrInsufficientInventory is matched by *RejectedError.
	ErrInsufficientInventory = errors.New("not enough items in inventory to fulfill this order")
	// ErrPartialCommit is matched by *PartialCommitError.
	ErrPartialCommit = errors.New("order completion partially applied")

	ErrOrderNotOpen     = errors.New("order is not open")
	ErrInvalidQuantity  = errors.New("quantity must be >= 0")
	ErrItemNotOnOrder   = errors.New("item is not on this order")
	ErrDuplicateItem    = errors.New("inventory item already exists")
	ErrInvalidShortName = errors.New("short name is required")
)

// RejectedError reports the shortfalls that block an order's completion.
// No remote writes happen when it is returned.
type RejectedError struct {
	OrderID    int64
	Shortfalls []Shortfall
}

func (e *RejectedError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = s.String()
	}
	return fmt.Sprintf("order %d: %v: %s", e.OrderID, ErrInsufficientInventory, strings.Join(parts, "; "))
}

func (e *RejectedError) Unwrap() error { return ErrInsufficientInventory }

// StepInventory is the only step a PartialCommitError can name: a failed
// order status write leaves nothing committed.
const StepInventory = "inventory"

// PartialCommitError means the order was marked Completed but the inventory
// decrement failed. The tables are inconsistent until someone corrects the
// inventory counts.
type PartialCommitError struct {
	OrderID int64
	Step    string
	Err     error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("order %d marked %s but %s update failed: %v", e.OrderID, "Completed", e.Step, e.Err)
}

func (e *PartialCommitError) Unwrap() []error { return []error{ErrPartialCommit, e.Err} }

// writeError classifies a gateway write failure.
func writeError(op string, err error) error {
	if errors.Is(err, gateway.ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrRecordNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteWriteFailed, err)
}
