// Package warehouse decodes gateway records into orders and inventory items
// and loads the per-render snapshot every view is computed from.
package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
)

// Order is a supply order as stored on the order layer.
type Order struct {
	ID           int64
	Coach        string
	Staff        string
	Community    string
	Date         time.Time
	Status       string
	CompletedAt  *time.Time
	Edited       bool
	LastEditedAt *time.Time
	Items        []OrderItem
}

// OrderItem is one manifest entry with its requested quantity.
type OrderItem struct {
	Key        string
	OrderField string
	Quantity   int
}

// InventoryItem is one row of the inventory table.
type InventoryItem struct {
	ID        int64
	ShortName string
	LongName  string
	Quantity  int
}

// IsOpen reports whether the order can still be edited or completed.
func (o Order) IsOpen() bool {
	return o.Status == enum.OrderStatusOpen
}

// StaffName is the part of the staff column after the last separator.
func (o Order) StaffName() string {
	if i := strings.LastIndex(o.Staff, enum.StaffSeparator); i >= 0 {
		return o.Staff[i+len(enum.StaffSeparator):]
	}
	return o.Staff
}

// Quantities returns product key -> requested quantity.
func (o Order) Quantities() map[string]int {
	out := make(map[string]int, len(o.Items))
	for _, it := range o.Items {
		out[it.Key] = it.Quantity
	}
	return out
}

// MatchesFilter reports whether the order belongs in a view with filter f.
func (o Order) MatchesFilter(f string) bool {
	return f == enum.FilterAll || o.Status == f
}

// FormatDate renders t for tables and details; the zero time renders empty.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(enum.DisplayDateLayout)
}

// ParseManifest splits the comma-separated Products value into product keys.
func ParseManifest(s string) []string {
	var keys []string
	for _, part := range strings.Split(s, ",") {
		if k := strings.TrimSpace(part); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// DecodeOrder builds an Order from an order-layer record. Manifest keys the
// catalog does not know are reported as catalog.ErrUnknownKey. A product on
// the manifest whose quantity column is null reads as zero.
func DecodeOrder(rec gateway.Record, cat *catalog.Catalog) (Order, error) {
	a := rec.Attributes
	o := Order{
		ID:        rec.ID,
		Coach:     gateway.String(a, enum.OrderAttrCoach),
		Staff:     gateway.String(a, enum.OrderAttrStaff),
		Community: gateway.String(a, enum.OrderAttrCommunity),
		Status:    gateway.String(a, enum.OrderAttrStatus),
		Edited:    gateway.String(a, enum.OrderAttrEdited) == enum.OrderEditedYes,
	}
	if o.Status == "" {
		o.Status = enum.OrderStatusOpen
	}

	var err error
	if o.Date, err = epochMillis(a, enum.OrderAttrDate); err != nil {
		return Order{}, fmt.Errorf("order %d: %w", rec.ID, err)
	}
	if o.CompletedAt, err = optionalEpochMillis(a, enum.OrderAttrWhenCompleted); err != nil {
		return Order{}, fmt.Errorf("order %d: %w", rec.ID, err)
	}
	if o.LastEditedAt, err = optionalEpochMillis(a, enum.OrderAttrLastEdited); err != nil {
		return Order{}, fmt.Errorf("order %d: %w", rec.ID, err)
	}

	for _, key := range ParseManifest(gateway.String(a, enum.OrderAttrProducts)) {
		field, err := cat.OrderFieldFor(key)
		if err != nil {
			return Order{}, fmt.Errorf("order %d manifest: %w", rec.ID, err)
		}
		qty, _, err := gateway.Int64(a, field)
		if err != nil {
			return Order{}, fmt.Errorf("order %d: %w", rec.ID, err)
		}
		o.Items = append(o.Items, OrderItem{Key: key, OrderField: field, Quantity: int(qty)})
	}
	return o, nil
}

// DecodeInventoryItem builds an InventoryItem from an inventory record.
func DecodeInventoryItem(rec gateway.Record) (InventoryItem, error) {
	qty, _, err := gateway.Int64(rec.Attributes, enum.InventoryAttrQuantity)
	if err != nil {
		return InventoryItem{}, fmt.Errorf("inventory %d: %w", rec.ID, err)
	}
	return InventoryItem{
		ID:        rec.ID,
		ShortName: gateway.String(rec.Attributes, enum.InventoryAttrShortName),
		LongName:  gateway.String(rec.Attributes, enum.InventoryAttrLongName),
		Quantity:  int(qty),
	}, nil
}

func epochMillis(a map[string]any, name string) (time.Time, error) {
	ms, ok, err := gateway.Int64(a, name)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func optionalEpochMillis(a map[string]any, name string) (*time.Time, error) {
	t, err := epochMillis(a, name)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// EpochMillis converts t to the millisecond epoch the remote layers store.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// LoadOrders fetches and decodes the whole order layer.
func LoadOrders(ctx context.Context, gw gateway.Gateway, cat *catalog.Catalog) ([]Order, error) {
	recs, err := gw.QueryAll(ctx, gateway.Orders)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	orders := make([]Order, 0, len(recs))
	for _, rec := range recs {
		o, err := DecodeOrder(rec, cat)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// LoadInventory fetches and decodes the whole inventory table.
func LoadInventory(ctx context.Context, gw gateway.Gateway) ([]InventoryItem, error) {
	recs, err := gw.QueryAll(ctx, gateway.Inventory)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	items := make([]InventoryItem, 0, len(recs))
	for _, rec := range recs {
		it, err := DecodeInventoryItem(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}
