package warehouse

import (
	"context"
	"fmt"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
)

// Snapshot is a full read of both tables. Views are computed from exactly
// one snapshot and never reuse it across renders.
type Snapshot struct {
	Orders    []Order
	Inventory []InventoryItem
}

// LoadSnapshot reads both tables once.
func LoadSnapshot(ctx context.Context, gw gateway.Gateway, cat *catalog.Catalog) (*Snapshot, error) {
	orders, err := LoadOrders(ctx, gw, cat)
	if err != nil {
		return nil, err
	}
	inv, err := LoadInventory(ctx, gw)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Orders: orders, Inventory: inv}, nil
}

// FilterOrders returns the orders visible under filter f, in store order.
func (s *Snapshot) FilterOrders(f string) []Order {
	var out []Order
	for _, o := range s.Orders {
		if o.MatchesFilter(f) {
			out = append(out, o)
		}
	}
	return out
}

// Order looks up an order by id.
func (s *Snapshot) Order(id int64) (Order, bool) {
	for _, o := range s.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// InventoryItem looks up an inventory row by short name.
func (s *Snapshot) InventoryItem(shortName string) (InventoryItem, bool) {
	return FindInventoryItem(s.Inventory, shortName)
}

// Quantities returns inventory short name -> quantity on hand.
func (s *Snapshot) Quantities() map[string]int {
	return InventoryQuantities(s.Inventory)
}

// Validate checks that every product on every order has an inventory row.
// Inventory may hold items no order mentions.
func (s *Snapshot) Validate(cat *catalog.Catalog) error {
	have := s.Quantities()
	for _, o := range s.Orders {
		for _, it := range o.Items {
			short, err := cat.ToInventoryShortName(it.Key)
			if err != nil {
				return fmt.Errorf("order %d: %w", o.ID, err)
			}
			if _, ok := have[short]; !ok {
				return fmt.Errorf("order %d: inventory item %q: %w", o.ID, short, catalog.ErrUnknownKey)
			}
		}
	}
	return nil
}

// FindInventoryItem looks up an inventory row by short name.
func FindInventoryItem(items []InventoryItem, shortName string) (InventoryItem, bool) {
	for _, it := range items {
		if it.ShortName == shortName {
			return it, true
		}
	}
	return InventoryItem{}, false
}

// InventoryQuantities returns short name -> quantity on hand.
func InventoryQuantities(items []InventoryItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ShortName] = it.Quantity
	}
	return out
}
