// Package session holds per-session view state: filter, selection, edit
// mode, pending confirmations and the data version views are keyed on.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
)

// Errors returned by state transitions.
var (
	ErrNotFound              = errors.New("session not found")
	ErrInvalidFilter         = errors.New("invalid status filter")
	ErrRowOutOfRange         = errors.New("row index out of range")
	ErrNotInView             = errors.New("order is not in the current view")
	ErrNoSelection           = errors.New("no order selected")
	ErrNotEditing            = errors.New("order is not in edit mode")
	ErrNoPendingConfirmation = errors.New("no pending confirmation")
)

// PendingInventoryUpdate is an inventory count change awaiting confirmation.
type PendingInventoryUpdate struct {
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Current   int    `json:"current"`
	New       int    `json:"new"`
}

// State is the view state of one logged-in user session.
type State struct {
	ID                uuid.UUID               `json:"id"`
	Username          string                  `json:"username"`
	LoggedIn          bool                    `json:"logged_in"`
	StatusFilter      string                  `json:"status_filter"`
	SelectedOrderID   *int64                  `json:"selected_order_id,omitempty"`
	Editing           bool                    `json:"editing"`
	DataVersion       int64                   `json:"data_version"`
	PendingCompletion *int64                  `json:"pending_completion,omitempty"`
	PendingInventory  *PendingInventoryUpdate `json:"pending_inventory,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

// New returns a fresh logged-in session for username.
func New(username string) *State {
	return &State{
		ID:           uuid.New(),
		Username:     username,
		LoggedIn:     true,
		StatusFilter: enum.DefaultFilter,
		CreatedAt:    time.Now().UTC(),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	if s.SelectedOrderID != nil {
		id := *s.SelectedOrderID
		c.SelectedOrderID = &id
	}
	if s.PendingCompletion != nil {
		id := *s.PendingCompletion
		c.PendingCompletion = &id
	}
	if s.PendingInventory != nil {
		p := *s.PendingInventory
		c.PendingInventory = &p
	}
	return &c
}

// BumpVersion marks all data views stale. Called after every successful
// mutation.
func (s *State) BumpVersion() int64 {
	s.DataVersion++
	return s.DataVersion
}

// SetFilter changes the status filter.
func (s *State) SetFilter(f string) error {
	if !enum.IsValidFilter(f) {
		return fmt.Errorf("%q: %w", f, ErrInvalidFilter)
	}
	s.StatusFilter = f
	return nil
}

// SelectRow selects the order at index in the current filtered view.
func (s *State) SelectRow(index int, view []warehouse.Order) error {
	if index < 0 || index >= len(view) {
		return fmt.Errorf("row %d of %d: %w", index, len(view), ErrRowOutOfRange)
	}
	s.selectID(view[index].ID)
	return nil
}

// SelectOrder selects an order by id; it must be in the current view.
func (s *State) SelectOrder(id int64, view []warehouse.Order) error {
	for _, o := range view {
		if o.ID == id {
			s.selectID(id)
			return nil
		}
	}
	return fmt.Errorf("order %d: %w", id, ErrNotInView)
}

func (s *State) selectID(id int64) {
	if s.SelectedOrderID != nil && *s.SelectedOrderID == id {
		return
	}
	s.SelectedOrderID = &id
	s.Editing = false
	s.PendingCompletion = nil
}

// ClearSelection drops the selection and everything hanging off it.
func (s *State) ClearSelection() {
	s.SelectedOrderID = nil
	s.Editing = false
	s.PendingCompletion = nil
}

// ResolveSelection returns the selected order if it is in view. A selection
// that fell out of view (filter change or concurrent completion) is cleared.
func (s *State) ResolveSelection(view []warehouse.Order) (warehouse.Order, bool) {
	if s.SelectedOrderID == nil {
		return warehouse.Order{}, false
	}
	for _, o := range view {
		if o.ID == *s.SelectedOrderID {
			return o, true
		}
	}
	s.ClearSelection()
	return warehouse.Order{}, false
}

// BeginEdit enters edit mode for the selected order, which must be Open.
func (s *State) BeginEdit(view []warehouse.Order) (warehouse.Order, error) {
	o, ok := s.ResolveSelection(view)
	if !ok {
		return warehouse.Order{}, ErrNoSelection
	}
	if !o.IsOpen() {
		return warehouse.Order{}, fmt.Errorf("order %d: %w", o.ID, fulfillment.ErrOrderNotOpen)
	}
	s.Editing = true
	return o, nil
}

// EndEdit leaves edit mode.
func (s *State) EndEdit() {
	s.Editing = false
}

// RequestCompletion records that the user was asked to confirm completing
// orderID. A newer request replaces an older one.
func (s *State) RequestCompletion(orderID int64) {
	s.PendingCompletion = &orderID
}

// TakeCompletion consumes the pending confirmation for orderID.
func (s *State) TakeCompletion(orderID int64) error {
	if s.PendingCompletion == nil || *s.PendingCompletion != orderID {
		return fmt.Errorf("complete order %d: %w", orderID, ErrNoPendingConfirmation)
	}
	s.PendingCompletion = nil
	return nil
}

// CancelCompletion dismisses the completion prompt.
func (s *State) CancelCompletion() {
	s.PendingCompletion = nil
}

// RequestInventoryUpdate records an inventory change awaiting confirmation.
func (s *State) RequestInventoryUpdate(p PendingInventoryUpdate) {
	s.PendingInventory = &p
}

// TakeInventoryUpdate consumes the pending inventory change.
func (s *State) TakeInventoryUpdate() (PendingInventoryUpdate, error) {
	if s.PendingInventory == nil {
		return PendingInventoryUpdate{}, fmt.Errorf("inventory update: %w", ErrNoPendingConfirmation)
	}
	p := *s.PendingInventory
	s.PendingInventory = nil
	return p, nil
}

// CancelInventoryUpdate dismisses the inventory prompt.
func (s *State) CancelInventoryUpdate() {
	s.PendingInventory = nil
}
