package fulfillment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/memstore"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse/warehousetest"
)

var fixedNow = time.Date(2024, 5, 2, 15, 4, 5, 0, time.UTC)

// twoStep hides memstore's Atomic implementation so the engine falls back to
// sequential writes.
type twoStep struct{ gateway.Gateway }

func newEngine(gw gateway.Gateway) *fulfillment.Engine {
	return fulfillment.NewEngine(gw, catalog.MustDefault()).WithClock(func() time.Time { return fixedNow })
}

func mustQty(t *testing.T, s *memstore.Store, short string) int64 {
	t.Helper()
	q, ok := warehousetest.Quantity(s, short)
	require.True(t, ok, "inventory item %s", short)
	return q
}

func TestCompleteOrderRejectedOnShortfall(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 2)
	eng := newEngine(store)

	_, err := eng.CompleteOrder(context.Background(), 7)

	var rejected *fulfillment.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.ErrorIs(t, err, fulfillment.ErrInsufficientInventory)
	assert.Equal(t, []fulfillment.Shortfall{{Item: "backpack", Requested: 3, Available: 2}}, rejected.Shortfalls)
	assert.Equal(t, "backpack: Requested 3, Available 2", rejected.Shortfalls[0].String())

	assert.Equal(t, int64(2), mustQty(t, store, "backpack"))
	assert.Equal(t, int64(100), mustQty(t, store, "incub_bag"))
	rec, _ := store.Get(gateway.Orders, 7)
	assert.Equal(t, enum.OrderStatusOpen, rec.Attributes[enum.OrderAttrStatus])
	assert.Equal(t, 0, store.Writes(gateway.Orders))
	assert.Equal(t, 0, store.Writes(gateway.Inventory))
}

func TestCompleteOrderRejectionIsIdempotent(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 2)
	eng := newEngine(store)

	for i := 0; i < 3; i++ {
		_, err := eng.CompleteOrder(context.Background(), 7)
		require.ErrorIs(t, err, fulfillment.ErrInsufficientInventory)
	}
	assert.Equal(t, 0, store.Writes(gateway.Orders))
	assert.Equal(t, 0, store.Writes(gateway.Inventory))
	assert.Equal(t, int64(2), mustQty(t, store, "backpack"))
}

func TestCompleteOrderCommitsBothTables(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 10)
	eng := newEngine(store)

	done, err := eng.CompleteOrder(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), done.OrderID)
	assert.Equal(t, "Coach Amani", done.Customer)
	assert.Equal(t, fixedNow, done.CompletedAt)
	assert.Equal(t, []fulfillment.InventoryChange{
		{ItemID: 1, ShortName: "backpack", Previous: 10, Current: 7},
		{ItemID: 2, ShortName: "incub_bag", Previous: 100, Current: 50},
	}, done.Changes)

	assert.Equal(t, int64(7), mustQty(t, store, "backpack"))
	assert.Equal(t, int64(50), mustQty(t, store, "incub_bag"))
	assert.Equal(t, int64(500), mustQty(t, store, "petrifilm_ec"))

	rec, _ := store.Get(gateway.Orders, 7)
	assert.Equal(t, enum.OrderStatusCompleted, rec.Attributes[enum.OrderAttrStatus])
	assert.Equal(t, fixedNow.UnixMilli(), rec.Attributes[enum.OrderAttrWhenCompleted])
}

func TestCompleteOrderTwiceIsNotOpen(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 10)
	eng := newEngine(store)

	_, err := eng.CompleteOrder(context.Background(), 7)
	require.NoError(t, err)
	_, err = eng.CompleteOrder(context.Background(), 7)
	assert.ErrorIs(t, err, fulfillment.ErrOrderNotOpen)
	assert.Equal(t, int64(7), mustQty(t, store, "backpack"))
}

func TestCompleteOrderUnknownOrder(t *testing.T) {
	eng := newEngine(warehousetest.Warehouse(catalog.MustDefault(), 10))
	_, err := eng.CompleteOrder(context.Background(), 404)
	assert.ErrorIs(t, err, fulfillment.ErrRecordNotFound)
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestCompleteOrderMissingInventoryRowIsMappingError(t *testing.T) {
	cat := catalog.MustDefault()
	store := warehousetest.Warehouse(cat, 10)
	warehousetest.SeedOrder(store, cat, warehousetest.Order{
		ID:    8,
		Items: []warehousetest.Item{{Key: "uv_flashlight", Qty: 1}},
	})

	_, err := newEngine(store).CompleteOrder(context.Background(), 8)
	assert.ErrorIs(t, err, fulfillment.ErrUnknownMappingKey)
	assert.Equal(t, 0, store.Writes(gateway.Orders))
}

func TestCompleteOrderTwoStepCommit(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 10)
	eng := newEngine(twoStep{store})

	_, err := eng.CompleteOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Writes(gateway.Orders))
	assert.Equal(t, 1, store.Writes(gateway.Inventory))
	assert.Equal(t, int64(7), mustQty(t, store, "backpack"))
}

func TestCompleteOrderStatusWriteFailureIsNotPartial(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 10)
	store.SetWriteHook(func(table gateway.Table, _ string) error {
		if table == gateway.Orders {
			return gateway.RemoteError("updateFeatures", errors.New("503 service unavailable"))
		}
		return nil
	})
	eng := newEngine(twoStep{store})

	_, err := eng.CompleteOrder(context.Background(), 7)

	var partial *fulfillment.PartialCommitError
	assert.False(t, errors.As(err, &partial))
	assert.ErrorIs(t, err, fulfillment.ErrRemoteWriteFailed)
	assert.Equal(t, 0, store.Writes(gateway.Inventory))
	assert.Equal(t, int64(10), mustQty(t, store, "backpack"))
}

func TestCompleteOrderPartialCommit(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 10)
	store.SetWriteHook(func(table gateway.Table, _ string) error {
		if table == gateway.Inventory {
			return gateway.RemoteError("applyEdits", errors.New("503 service unavailable"))
		}
		return nil
	})
	eng := newEngine(twoStep{store})

	_, err := eng.CompleteOrder(context.Background(), 7)

	var partial *fulfillment.PartialCommitError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(7), partial.OrderID)
	assert.Equal(t, fulfillment.StepInventory, partial.Step)
	assert.ErrorIs(t, err, fulfillment.ErrPartialCommit)
	assert.ErrorIs(t, err, fulfillment.ErrRemoteWriteFailed)
	assert.True(t, fulfillment.IsRemoteFailure(err))

	rec, _ := store.Get(gateway.Orders, 7)
	assert.Equal(t, enum.OrderStatusCompleted, rec.Attributes[enum.OrderAttrStatus])
	assert.Equal(t, int64(10), mustQty(t, store, "backpack"))
}

func TestCompleteOrderAtomicFailureWritesNothing(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 10)
	store.SetWriteHook(func(table gateway.Table, _ string) error {
		if table == gateway.Inventory {
			return gateway.RemoteError("applyEdits", errors.New("timeout"))
		}
		return nil
	})

	_, err := newEngine(store).CompleteOrder(context.Background(), 7)
	require.ErrorIs(t, err, fulfillment.ErrRemoteWriteFailed)
	var partial *fulfillment.PartialCommitError
	assert.False(t, errors.As(err, &partial))

	rec, _ := store.Get(gateway.Orders, 7)
	assert.Equal(t, enum.OrderStatusOpen, rec.Attributes[enum.OrderAttrStatus])
	assert.Equal(t, int64(10), mustQty(t, store, "backpack"))
}

func TestCheckCompletion(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 2)
	check, err := newEngine(store).CheckCompletion(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, check.Fulfillable())
	assert.Equal(t, map[string]int{"backpack": 3, "incub_bag": 50}, check.Requested)
	assert.Len(t, check.Shortfalls, 1)
	assert.Equal(t, 0, store.Writes(gateway.Orders))
}

func TestEditOrder(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 2)
	eng := newEngine(store)

	res, err := eng.EditOrder(context.Background(), 7, map[string]int{"backpack": 2})
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Equal(t, map[string]int{"backpack": 2}, res.Changed)
	assert.Equal(t, fixedNow, res.EditedAt)
	assert.Equal(t, 1, store.Writes(gateway.Orders))

	rec, _ := store.Get(gateway.Orders, 7)
	assert.Equal(t, 2, rec.Attributes["num_backpacks"])
	assert.Equal(t, 50, rec.Attributes["num_incub_bags"])
	assert.Equal(t, enum.OrderEditedYes, rec.Attributes[enum.OrderAttrEdited])
	assert.Equal(t, fixedNow.UnixMilli(), rec.Attributes[enum.OrderAttrLastEdited])

	// After the edit the order fits the inventory.
	done, err := eng.CompleteOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 0, done.Changes[0].Current)
}

func TestEditOrderEmptyIsNoOp(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 2)
	res, err := newEngine(store).EditOrder(context.Background(), 7, map[string]int{})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, 0, store.Writes(gateway.Orders))
}

func TestEditOrderRejections(t *testing.T) {
	cat := catalog.MustDefault()
	tests := []struct {
		name    string
		orderID int64
		changed map[string]int
		wantErr error
	}{
		{"negative quantity", 7, map[string]int{"backpack": -1}, fulfillment.ErrInvalidQuantity},
		{"unknown product", 7, map[string]int{"widget": 1}, fulfillment.ErrUnknownMappingKey},
		{"not on order", 7, map[string]int{"gloves": 1}, fulfillment.ErrItemNotOnOrder},
		{"missing order", 99, map[string]int{"backpack": 1}, fulfillment.ErrRecordNotFound},
		{"completed order", 8, map[string]int{"backpack": 1}, fulfillment.ErrOrderNotOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := warehousetest.Warehouse(cat, 2)
			warehousetest.SeedOrder(store, cat, warehousetest.Order{
				ID:     8,
				Status: enum.OrderStatusCompleted,
				Items:  []warehousetest.Item{{Key: "backpack", Qty: 1}},
			})
			_, err := newEngine(store).EditOrder(context.Background(), tt.orderID, tt.changed)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, store.Writes(gateway.Orders))
		})
	}
}

func TestEditOrderVanishedRecord(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 2)
	eng := newEngine(vanishing{Store: store, id: 7})
	_, err := eng.EditOrder(context.Background(), 7, map[string]int{"backpack": 1})
	assert.ErrorIs(t, err, fulfillment.ErrRecordNotFound)
}

// vanishing deletes a record after it has been read, before any update.
type vanishing struct {
	*memstore.Store
	id int64
}

func (v vanishing) QueryAll(ctx context.Context, t gateway.Table) ([]gateway.Record, error) {
	recs, err := v.Store.QueryAll(ctx, t)
	if t == gateway.Orders {
		v.Store.Delete(gateway.Orders, v.id)
	}
	return recs, err
}

func TestSetInventoryQuantity(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 2)
	eng := newEngine(store)

	change, err := eng.SetInventoryQuantity(context.Background(), "backpack", 12)
	require.NoError(t, err)
	assert.Equal(t, 2, change.Previous)
	assert.Equal(t, 12, change.Current)
	assert.Equal(t, int64(12), mustQty(t, store, "backpack"))

	_, err = eng.SetInventoryQuantity(context.Background(), "backpack", -3)
	assert.ErrorIs(t, err, fulfillment.ErrInvalidQuantity)
	_, err = eng.SetInventoryQuantity(context.Background(), "anvil", 1)
	assert.ErrorIs(t, err, fulfillment.ErrRecordNotFound)
}

func TestAddInventoryItem(t *testing.T) {
	store := warehousetest.Warehouse(catalog.MustDefault(), 2)
	eng := newEngine(store)

	item, err := eng.AddInventoryItem(context.Background(), fulfillment.NewInventoryItem{
		ShortName: " uv_flashlight ",
		LongName:  "UV Flashlight",
		Quantity:  4,
	})
	require.NoError(t, err)
	assert.Equal(t, "uv_flashlight", item.ShortName)
	assert.Equal(t, int64(4), mustQty(t, store, "uv_flashlight"))

	_, err = eng.AddInventoryItem(context.Background(), fulfillment.NewInventoryItem{ShortName: "backpack"})
	assert.ErrorIs(t, err, fulfillment.ErrDuplicateItem)
	_, err = eng.AddInventoryItem(context.Background(), fulfillment.NewInventoryItem{ShortName: "  "})
	assert.ErrorIs(t, err, fulfillment.ErrInvalidShortName)
}

func TestQueryFailureIsRemote(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(warehousetest.Warehouse(catalog.MustDefault(), 2)).CheckCompletion(ctx, 7)
	assert.ErrorIs(t, err, gateway.ErrRemote)
	assert.True(t, fulfillment.IsRemoteFailure(err))
}

func TestSeedCatalog(t *testing.T) {
	cat := catalog.MustDefault()
	store := warehousetest.Warehouse(cat, 2)
	eng := newEngine(store)

	added, err := eng.SeedCatalog(context.Background(), 0)
	require.NoError(t, err)
	// The fixture already holds three of the catalog's inventory rows.
	assert.Len(t, added, len(cat.Products())-3)
	for _, p := range cat.Products() {
		_, ok := warehousetest.Quantity(store, p.Inventory)
		assert.True(t, ok, "inventory row for %s", p.Key)
	}
	assert.Equal(t, int64(2), mustQty(t, store, "backpack"), "existing rows untouched")

	again, err := eng.SeedCatalog(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestVerifyMapping(t *testing.T) {
	cat := catalog.MustDefault()
	store := warehousetest.Warehouse(cat, 2)
	eng := newEngine(store)
	require.NoError(t, eng.VerifyMapping(context.Background()))

	warehousetest.SeedOrder(store, cat, warehousetest.Order{
		ID:    9,
		Items: []warehousetest.Item{{Key: "hand_warmer", Qty: 1}},
	})
	err := eng.VerifyMapping(context.Background())
	assert.ErrorIs(t, err, fulfillment.ErrUnknownMappingKey)
	assert.ErrorIs(t, err, catalog.ErrUnknownKey)

	_, err = eng.SeedCatalog(context.Background(), 0)
	require.NoError(t, err)
	assert.NoError(t, eng.VerifyMapping(context.Background()))
}
