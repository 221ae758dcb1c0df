package warehouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse/warehousetest"
)

func TestDecodeOrder(t *testing.T) {
	cat := catalog.MustDefault()
	date := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	attrs := warehousetest.OrderAttrs(cat, warehousetest.Order{
		ID:    7,
		Coach: "Coach Amani",
		Staff: "Field Lead - SWE - Grace Njeri",
		Date:  date,
		Items: []warehousetest.Item{{Key: "backpack", Qty: 3}, {Key: "incub_bag", Qty: 50}},
	})

	o, err := warehouse.DecodeOrder(gateway.Record{ID: 7, Attributes: attrs}, cat)
	require.NoError(t, err)

	assert.Equal(t, int64(7), o.ID)
	assert.Equal(t, "Coach Amani", o.Coach)
	assert.Equal(t, "Grace Njeri", o.StaffName())
	assert.Equal(t, date, o.Date)
	assert.True(t, o.IsOpen())
	assert.Nil(t, o.CompletedAt)
	assert.False(t, o.Edited)
	assert.Equal(t, map[string]int{"backpack": 3, "incub_bag": 50}, o.Quantities())
	assert.Equal(t, "num_backpacks", o.Items[0].OrderField)
}

func TestDecodeOrderCompletedAndEdited(t *testing.T) {
	cat := catalog.MustDefault()
	attrs := warehousetest.OrderAttrs(cat, warehousetest.Order{
		ID:     3,
		Status: enum.OrderStatusCompleted,
		Items:  []warehousetest.Item{{Key: "gloves", Qty: 2}},
	})
	done := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	attrs[enum.OrderAttrWhenCompleted] = float64(done.UnixMilli())
	attrs[enum.OrderAttrEdited] = enum.OrderEditedYes
	attrs[enum.OrderAttrLastEdited] = done.Add(-time.Hour).UnixMilli()

	o, err := warehouse.DecodeOrder(gateway.Record{ID: 3, Attributes: attrs}, cat)
	require.NoError(t, err)
	require.NotNil(t, o.CompletedAt)
	assert.Equal(t, done, *o.CompletedAt)
	assert.True(t, o.Edited)
	require.NotNil(t, o.LastEditedAt)
	assert.False(t, o.IsOpen())
	assert.Equal(t, "01 Apr, 2024", warehouse.FormatDate(*o.CompletedAt))
}

func TestDecodeOrderNullQuantityReadsZero(t *testing.T) {
	cat := catalog.MustDefault()
	attrs := warehousetest.OrderAttrs(cat, warehousetest.Order{
		ID:    1,
		Items: []warehousetest.Item{{Key: "pipette", Qty: 5}},
	})
	attrs["num_pipettes"] = nil

	o, err := warehouse.DecodeOrder(gateway.Record{ID: 1, Attributes: attrs}, cat)
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 0, o.Items[0].Quantity)
}

func TestDecodeOrderUnknownManifestKey(t *testing.T) {
	cat := catalog.MustDefault()
	attrs := warehousetest.OrderAttrs(cat, warehousetest.Order{ID: 1})
	attrs[enum.OrderAttrProducts] = "backpack,widget"

	_, err := warehouse.DecodeOrder(gateway.Record{ID: 1, Attributes: attrs}, cat)
	assert.ErrorIs(t, err, catalog.ErrUnknownKey)
}

func TestParseManifest(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, warehouse.ParseManifest(" a, ,b,"))
	assert.Nil(t, warehouse.ParseManifest(""))
}

func TestStaffNameWithoutSeparator(t *testing.T) {
	assert.Equal(t, "Grace", warehouse.Order{Staff: "Grace"}.StaffName())
}

func TestLoadSnapshotAndFilter(t *testing.T) {
	cat := catalog.MustDefault()
	store := warehousetest.Warehouse(cat, 2)
	warehousetest.SeedOrder(store, cat, warehousetest.Order{
		ID:     8,
		Status: enum.OrderStatusCompleted,
		Items:  []warehousetest.Item{{Key: "backpack", Qty: 1}},
	})

	snap, err := warehouse.LoadSnapshot(context.Background(), store, cat)
	require.NoError(t, err)

	assert.Len(t, snap.FilterOrders(enum.FilterAll), 2)
	open := snap.FilterOrders(enum.FilterOpen)
	require.Len(t, open, 1)
	assert.Equal(t, int64(7), open[0].ID)
	completed := snap.FilterOrders(enum.FilterCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, int64(8), completed[0].ID)

	assert.Equal(t, 2, snap.Quantities()["backpack"])
	item, ok := snap.InventoryItem("incub_bag")
	require.True(t, ok)
	assert.Equal(t, "Bag, Incubation", item.LongName)

	_, ok = snap.Order(99)
	assert.False(t, ok)

	assert.NoError(t, snap.Validate(cat))
}

func TestSnapshotValidateReportsMissingInventory(t *testing.T) {
	cat := catalog.MustDefault()
	store := warehousetest.Warehouse(cat, 2)
	warehousetest.SeedOrder(store, cat, warehousetest.Order{
		ID:    9,
		Items: []warehousetest.Item{{Key: "hand_warmer", Qty: 1}},
	})

	snap, err := warehouse.LoadSnapshot(context.Background(), store, cat)
	require.NoError(t, err)
	assert.ErrorIs(t, snap.Validate(cat), catalog.ErrUnknownKey)
}
