// Package warehousetest builds order and inventory fixtures in the attribute
// layout of the remote layers.
package warehousetest

import (
	"context"
	"strings"
	"time"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/memstore"
)

// Item is one manifest entry of a fixture order.
type Item struct {
	Key string
	Qty int
}

// Order describes a fixture order. Zero values get sensible defaults.
type Order struct {
	ID        int64
	Coach     string
	Staff     string
	Community string
	Date      time.Time
	Status    string
	Items     []Item
}

// OrderAttrs renders o in the order layer's attribute layout.
func OrderAttrs(cat *catalog.Catalog, o Order) map[string]any {
	if o.Coach == "" {
		o.Coach = "Coach Amani"
	}
	if o.Staff == "" {
		o.Staff = "SWE - Grace Njeri"
	}
	if o.Community == "" {
		o.Community = "Kibera"
	}
	if o.Date.IsZero() {
		o.Date = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	}
	if o.Status == "" {
		o.Status = enum.OrderStatusOpen
	}

	keys := make([]string, len(o.Items))
	attrs := map[string]any{
		enum.OrderAttrCoach:     o.Coach,
		enum.OrderAttrStaff:     o.Staff,
		enum.OrderAttrCommunity: o.Community,
		enum.OrderAttrDate:      o.Date.UnixMilli(),
		enum.OrderAttrStatus:    o.Status,
	}
	for i, it := range o.Items {
		keys[i] = it.Key
		field, err := cat.OrderFieldFor(it.Key)
		if err != nil {
			panic(err)
		}
		attrs[field] = it.Qty
	}
	attrs[enum.OrderAttrProducts] = strings.Join(keys, ",")
	return attrs
}

// InventoryAttrs renders an inventory row.
func InventoryAttrs(short, long string, qty int) map[string]any {
	return map[string]any{
		enum.InventoryAttrShortName: short,
		enum.InventoryAttrLongName:  long,
		enum.InventoryAttrQuantity:  qty,
	}
}

// SeedOrder stores o in s under o.ID.
func SeedOrder(s *memstore.Store, cat *catalog.Catalog, o Order) {
	s.Put(gateway.Orders, o.ID, OrderAttrs(cat, o))
}

// SeedInventory stores an inventory row under id.
func SeedInventory(s *memstore.Store, id int64, short, long string, qty int) {
	s.Put(gateway.Inventory, id, InventoryAttrs(short, long, qty))
}

// Warehouse returns a store holding order #7 {backpack: 3, incub_bag: 50}
// and inventory {backpack: backpacks, incub_bag: 100}.
func Warehouse(cat *catalog.Catalog, backpacks int) *memstore.Store {
	s := memstore.New()
	SeedInventory(s, 1, "backpack", "Backpack", backpacks)
	SeedInventory(s, 2, "incub_bag", "Bag, Incubation", 100)
	SeedInventory(s, 3, "petrifilm_ec", "Petrifilm E. coli", 500)
	SeedOrder(s, cat, Order{
		ID:    7,
		Coach: "Coach Amani",
		Items: []Item{{Key: "backpack", Qty: 3}, {Key: "incub_bag", Qty: 50}},
	})
	return s
}

// Quantity reads the inventory quantity stored for a short name.
func Quantity(s *memstore.Store, short string) (int64, bool) {
	recs, _ := s.QueryAll(context.Background(), gateway.Inventory)
	for _, r := range recs {
		if gateway.String(r.Attributes, enum.InventoryAttrShortName) == short {
			q, ok, _ := gateway.Int64(r.Attributes, enum.InventoryAttrQuantity)
			return q, ok
		}
	}
	return 0, false
}
