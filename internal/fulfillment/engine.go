// Package fulfillment applies order edits and completions to the remote
// tables and checks inventory availability before a completion is written.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
)

// EditResult describes an applied (or skipped) order edit.
type EditResult struct {
	OrderID  int64
	NoOp     bool
	Changed  map[string]int // product key -> new quantity
	EditedAt time.Time
}

// CompletionCheck is the outcome of checking an open order against current
// inventory. It is fulfillable when Shortfalls is empty.
type CompletionCheck struct {
	Order      warehouse.Order
	Requested  map[string]int // inventory short name -> quantity
	Shortfalls []Shortfall
}

// Fulfillable reports whether the order can be completed as-is.
func (c *CompletionCheck) Fulfillable() bool {
	return len(c.Shortfalls) == 0
}

// InventoryChange is one inventory row's quantity before and after a write.
type InventoryChange struct {
	ItemID    int64  `json:"item_id"`
	ShortName string `json:"short_name"`
	Previous  int    `json:"previous"`
	Current   int    `json:"current"`
}

// Completion describes a committed order completion.
type Completion struct {
	OrderID     int64
	Customer    string
	CompletedAt time.Time
	Changes     []InventoryChange
}

// Engine reconciles orders against inventory through a gateway.
type Engine struct {
	gw  gateway.Gateway
	cat *catalog.Catalog
	now func() time.Time
}

// NewEngine creates a new Engine.
func NewEngine(gw gateway.Gateway, cat *catalog.Catalog) *Engine {
	return &Engine{gw: gw, cat: cat, now: time.Now}
}

// WithClock replaces the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Catalog returns the product catalog the engine maps names with.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// EditOrder writes new quantities for products on an open order in a single
// update, marking the order edited. An empty change set performs no write.
func (e *Engine) EditOrder(ctx context.Context, orderID int64, changed map[string]int) (*EditResult, error) {
	if len(changed) == 0 {
		return &EditResult{OrderID: orderID, NoOp: true}, nil
	}

	attrs := make(map[string]any, len(changed)+2)
	for key, qty := range changed {
		if qty < 0 {
			return nil, fmt.Errorf("%s: %w", key, ErrInvalidQuantity)
		}
		field, err := e.cat.OrderFieldFor(key)
		if err != nil {
			return nil, err
		}
		attrs[field] = qty
	}

	order, err := e.fetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, fmt.Errorf("order %d (%s): %w", orderID, order.Status, ErrOrderNotOpen)
	}
	onOrder := order.Quantities()
	for key := range changed {
		if _, ok := onOrder[key]; !ok {
			return nil, fmt.Errorf("order %d: %s: %w", orderID, key, ErrItemNotOnOrder)
		}
	}

	now := e.now().UTC()
	attrs[enum.OrderAttrEdited] = enum.OrderEditedYes
	attrs[enum.OrderAttrLastEdited] = warehouse.EpochMillis(now)

	update := []gateway.Record{{ID: orderID, Attributes: attrs}}
	if err := e.gw.UpdateRecords(ctx, gateway.Orders, update); err != nil {
		return nil, writeError(fmt.Sprintf("edit order %d", orderID), err)
	}

	out := make(map[string]int, len(changed))
	for k, v := range changed {
		out[k] = v
	}
	return &EditResult{OrderID: orderID, Changed: out, EditedAt: now}, nil
}

// CheckCompletion reads the order and current inventory and reports whether
// the order could be completed. It never writes.
func (e *Engine) CheckCompletion(ctx context.Context, orderID int64) (*CompletionCheck, error) {
	order, err := e.fetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, fmt.Errorf("order %d (%s): %w", orderID, order.Status, ErrOrderNotOpen)
	}
	inv, err := warehouse.LoadInventory(ctx, e.gw)
	if err != nil {
		return nil, err
	}
	return e.check(order, inv)
}

func (e *Engine) check(order warehouse.Order, inv []warehouse.InventoryItem) (*CompletionCheck, error) {
	requested, err := e.requestedByShortName(order)
	if err != nil {
		return nil, err
	}
	shortfalls, err := CheckAvailability(requested, warehouse.InventoryQuantities(inv))
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", order.ID, err)
	}
	return &CompletionCheck{Order: order, Requested: requested, Shortfalls: shortfalls}, nil
}

// CompleteOrder re-reads the order and inventory, re-checks availability and,
// when every item is available, marks the order Completed and decrements each
// inventory row by the ordered quantity.
//
// A shortfall returns *RejectedError and writes nothing. Stores implementing
// gateway.Atomic commit both tables together. Otherwise the order status is
// written first, then inventory; a failure of the second write returns
// *PartialCommitError.
func (e *Engine) CompleteOrder(ctx context.Context, orderID int64) (*Completion, error) {
	order, err := e.fetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, fmt.Errorf("order %d (%s): %w", orderID, order.Status, ErrOrderNotOpen)
	}
	inv, err := warehouse.LoadInventory(ctx, e.gw)
	if err != nil {
		return nil, err
	}
	check, err := e.check(order, inv)
	if err != nil {
		return nil, err
	}
	if !check.Fulfillable() {
		return nil, &RejectedError{OrderID: orderID, Shortfalls: check.Shortfalls}
	}

	shorts := make([]string, 0, len(check.Requested))
	for short := range check.Requested {
		shorts = append(shorts, short)
	}
	sort.Strings(shorts)

	changes := make([]InventoryChange, 0, len(shorts))
	invUpdates := make([]gateway.Record, 0, len(shorts))
	for _, short := range shorts {
		item, _ := warehouse.FindInventoryItem(inv, short)
		next := item.Quantity - check.Requested[short]
		changes = append(changes, InventoryChange{
			ItemID:    item.ID,
			ShortName: short,
			Previous:  item.Quantity,
			Current:   next,
		})
		invUpdates = append(invUpdates, gateway.Record{
			ID:         item.ID,
			Attributes: map[string]any{enum.InventoryAttrQuantity: next},
		})
	}

	now := e.now().UTC()
	orderUpdate := []gateway.Record{{
		ID: orderID,
		Attributes: map[string]any{
			enum.OrderAttrStatus:        enum.OrderStatusCompleted,
			enum.OrderAttrWhenCompleted: warehouse.EpochMillis(now),
		},
	}}

	op := fmt.Sprintf("complete order %d", orderID)
	if atomic, ok := e.gw.(gateway.Atomic); ok {
		err := atomic.ApplyEdits(ctx, []gateway.TableEdit{
			{Table: gateway.Orders, Updates: orderUpdate},
			{Table: gateway.Inventory, Updates: invUpdates},
		})
		if err != nil {
			return nil, writeError(op, err)
		}
	} else {
		if err := e.gw.UpdateRecords(ctx, gateway.Orders, orderUpdate); err != nil {
			return nil, writeError(op, err)
		}
		if len(invUpdates) > 0 {
			if err := e.gw.UpdateRecords(ctx, gateway.Inventory, invUpdates); err != nil {
				return nil, &PartialCommitError{OrderID: orderID, Step: StepInventory, Err: writeError(op, err)}
			}
		}
	}

	return &Completion{
		OrderID:     orderID,
		Customer:    order.Coach,
		CompletedAt: now,
		Changes:     changes,
	}, nil
}

// SetInventoryQuantity overwrites the on-hand quantity of one inventory row.
func (e *Engine) SetInventoryQuantity(ctx context.Context, shortName string, qty int) (*InventoryChange, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%s: %w", shortName, ErrInvalidQuantity)
	}
	inv, err := warehouse.LoadInventory(ctx, e.gw)
	if err != nil {
		return nil, err
	}
	item, ok := warehouse.FindInventoryItem(inv, shortName)
	if !ok {
		return nil, fmt.Errorf("inventory item %q: %w", shortName, ErrRecordNotFound)
	}
	update := []gateway.Record{{
		ID:         item.ID,
		Attributes: map[string]any{enum.InventoryAttrQuantity: qty},
	}}
	if err := e.gw.UpdateRecords(ctx, gateway.Inventory, update); err != nil {
		return nil, writeError(fmt.Sprintf("update inventory %q", shortName), err)
	}
	return &InventoryChange{ItemID: item.ID, ShortName: shortName, Previous: item.Quantity, Current: qty}, nil
}

// NewInventoryItem is the input for AddInventoryItem.
type NewInventoryItem struct {
	ShortName string
	LongName  string
	Quantity  int
}

// AddInventoryItem inserts a new inventory row. Short names are unique.
func (e *Engine) AddInventoryItem(ctx context.Context, req NewInventoryItem) (warehouse.InventoryItem, error) {
	short := strings.TrimSpace(req.ShortName)
	if short == "" {
		return warehouse.InventoryItem{}, ErrInvalidShortName
	}
	if req.Quantity < 0 {
		return warehouse.InventoryItem{}, fmt.Errorf("%s: %w", short, ErrInvalidQuantity)
	}
	long := strings.TrimSpace(req.LongName)
	if long == "" {
		long = short
	}
	inv, err := warehouse.LoadInventory(ctx, e.gw)
	if err != nil {
		return warehouse.InventoryItem{}, err
	}
	if _, exists := warehouse.FindInventoryItem(inv, short); exists {
		return warehouse.InventoryItem{}, fmt.Errorf("%q: %w", short, ErrDuplicateItem)
	}
	id, err := e.gw.InsertRecord(ctx, gateway.Inventory, map[string]any{
		enum.InventoryAttrShortName: short,
		enum.InventoryAttrLongName:  long,
		enum.InventoryAttrQuantity:  req.Quantity,
	})
	if err != nil {
		return warehouse.InventoryItem{}, fmt.Errorf("insert inventory %q: %w: %w", short, ErrRemoteWriteFailed, err)
	}
	return warehouse.InventoryItem{ID: id, ShortName: short, LongName: long, Quantity: req.Quantity}, nil
}

// SeedCatalog adds an inventory row for every catalog product that has none,
// starting at qty. Existing rows are left alone. It returns the rows added.
func (e *Engine) SeedCatalog(ctx context.Context, qty int) ([]warehouse.InventoryItem, error) {
	inv, err := warehouse.LoadInventory(ctx, e.gw)
	if err != nil {
		return nil, err
	}
	var added []warehouse.InventoryItem
	for _, p := range e.cat.Products() {
		if _, exists := warehouse.FindInventoryItem(inv, p.Inventory); exists {
			continue
		}
		item, err := e.AddInventoryItem(ctx, NewInventoryItem{ShortName: p.Inventory, LongName: p.Display, Quantity: qty})
		if err != nil {
			return added, err
		}
		added = append(added, item)
	}
	return added, nil
}

// VerifyMapping loads both tables and checks that every product on every
// order resolves to an inventory row.
func (e *Engine) VerifyMapping(ctx context.Context) error {
	snap, err := warehouse.LoadSnapshot(ctx, e.gw, e.cat)
	if err != nil {
		return err
	}
	return snap.Validate(e.cat)
}

func (e *Engine) fetchOrder(ctx context.Context, orderID int64) (warehouse.Order, error) {
	recs, err := e.gw.QueryAll(ctx, gateway.Orders)
	if err != nil {
		return warehouse.Order{}, fmt.Errorf("query orders: %w", err)
	}
	for _, rec := range recs {
		if rec.ID == orderID {
			return warehouse.DecodeOrder(rec, e.cat)
		}
	}
	return warehouse.Order{}, fmt.Errorf("order %d: %w: %w", orderID, ErrRecordNotFound, gateway.ErrNotFound)
}

func (e *Engine) requestedByShortName(order warehouse.Order) (map[string]int, error) {
	out := make(map[string]int, len(order.Items))
	for _, it := range order.Items {
		short, err := e.cat.ToInventoryShortName(it.Key)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, err)
		}
		out[short] += it.Quantity
	}
	return out, nil
}

// IsRemoteFailure reports whether err came from the remote store rather than
// from validation or mapping.
func IsRemoteFailure(err error) bool {
	return errors.Is(err, gateway.ErrRemote) || errors.Is(err, ErrRemoteWriteFailed)
}
