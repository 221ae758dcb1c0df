package session_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/enum"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
)

func view() []warehouse.Order {
	return []warehouse.Order{
		{ID: 7, Status: enum.OrderStatusOpen},
		{ID: 9, Status: enum.OrderStatusOpen},
		{ID: 12, Status: enum.OrderStatusCompleted},
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := session.New("alice")
	assert.True(t, s.LoggedIn)
	assert.Equal(t, enum.FilterOpen, s.StatusFilter)
	assert.Nil(t, s.SelectedOrderID)
	assert.NotEqual(t, uuid.Nil, s.ID)
}

func TestBumpVersionStrictlyIncreases(t *testing.T) {
	s := session.New("alice")
	prev := s.DataVersion
	for i := 0; i < 5; i++ {
		v := s.BumpVersion()
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestSetFilter(t *testing.T) {
	s := session.New("alice")
	require.NoError(t, s.SetFilter(enum.FilterAll))
	assert.Equal(t, enum.FilterAll, s.StatusFilter)
	assert.ErrorIs(t, s.SetFilter("Pending"), session.ErrInvalidFilter)
	assert.Equal(t, enum.FilterAll, s.StatusFilter)
}

func TestSelectRowStoresStableID(t *testing.T) {
	s := session.New("alice")
	require.NoError(t, s.SelectRow(1, view()))
	require.NotNil(t, s.SelectedOrderID)
	assert.Equal(t, int64(9), *s.SelectedOrderID)

	// A re-query that reorders rows keeps the same order selected.
	reordered := []warehouse.Order{{ID: 9, Status: enum.OrderStatusOpen}, {ID: 7, Status: enum.OrderStatusOpen}}
	o, ok := s.ResolveSelection(reordered)
	require.True(t, ok)
	assert.Equal(t, int64(9), o.ID)

	assert.ErrorIs(t, s.SelectRow(3, view()), session.ErrRowOutOfRange)
	assert.ErrorIs(t, s.SelectRow(-1, view()), session.ErrRowOutOfRange)
}

func TestSelectOrderMustBeInView(t *testing.T) {
	s := session.New("alice")
	assert.ErrorIs(t, s.SelectOrder(44, view()), session.ErrNotInView)
	require.NoError(t, s.SelectOrder(12, view()))
	assert.Equal(t, int64(12), *s.SelectedOrderID)
}

func TestResolveSelectionClearsWhenOutOfView(t *testing.T) {
	s := session.New("alice")
	require.NoError(t, s.SelectOrder(7, view()))
	_, err := s.BeginEdit(view())
	require.NoError(t, err)
	s.RequestCompletion(7)

	// Order 7 was completed elsewhere and the Open view no longer holds it.
	_, ok := s.ResolveSelection([]warehouse.Order{{ID: 9, Status: enum.OrderStatusOpen}})
	assert.False(t, ok)
	assert.Nil(t, s.SelectedOrderID)
	assert.False(t, s.Editing)
	assert.Nil(t, s.PendingCompletion)
}

func TestBeginEdit(t *testing.T) {
	s := session.New("alice")
	_, err := s.BeginEdit(view())
	assert.ErrorIs(t, err, session.ErrNoSelection)

	require.NoError(t, s.SelectOrder(12, view()))
	_, err = s.BeginEdit(view())
	assert.ErrorIs(t, err, fulfillment.ErrOrderNotOpen)
	assert.False(t, s.Editing)

	require.NoError(t, s.SelectOrder(7, view()))
	o, err := s.BeginEdit(view())
	require.NoError(t, err)
	assert.Equal(t, int64(7), o.ID)
	assert.True(t, s.Editing)

	// Selecting another order leaves edit mode.
	require.NoError(t, s.SelectOrder(9, view()))
	assert.False(t, s.Editing)

	s.EndEdit()
	assert.False(t, s.Editing)
}

func TestCompletionConfirmation(t *testing.T) {
	s := session.New("alice")
	assert.ErrorIs(t, s.TakeCompletion(7), session.ErrNoPendingConfirmation)

	s.RequestCompletion(7)
	assert.ErrorIs(t, s.TakeCompletion(9), session.ErrNoPendingConfirmation)
	require.NoError(t, s.TakeCompletion(7))
	assert.ErrorIs(t, s.TakeCompletion(7), session.ErrNoPendingConfirmation)

	s.RequestCompletion(7)
	s.CancelCompletion()
	assert.Nil(t, s.PendingCompletion)
}

func TestInventoryConfirmation(t *testing.T) {
	s := session.New("alice")
	_, err := s.TakeInventoryUpdate()
	assert.ErrorIs(t, err, session.ErrNoPendingConfirmation)

	s.RequestInventoryUpdate(session.PendingInventoryUpdate{ShortName: "backpack", Current: 2, New: 12})
	p, err := s.TakeInventoryUpdate()
	require.NoError(t, err)
	assert.Equal(t, 12, p.New)
	assert.Nil(t, s.PendingInventory)

	s.RequestInventoryUpdate(session.PendingInventoryUpdate{ShortName: "backpack", New: 1})
	s.CancelInventoryUpdate()
	assert.Nil(t, s.PendingInventory)
}

func TestCloneIsDeep(t *testing.T) {
	s := session.New("alice")
	require.NoError(t, s.SelectOrder(7, view()))
	s.RequestInventoryUpdate(session.PendingInventoryUpdate{ShortName: "backpack", New: 1})

	c := s.Clone()
	*c.SelectedOrderID = 99
	c.PendingInventory.New = 5
	assert.Equal(t, int64(7), *s.SelectedOrderID)
	assert.Equal(t, 1, s.PendingInventory.New)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(0)
	s := session.New("alice")
	require.NoError(t, store.Put(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	got.Username = "mallory"
	again, _ := store.Get(ctx, s.ID)
	assert.Equal(t, "alice", again.Username)

	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(time.Millisecond)
	s := session.New("alice")
	require.NoError(t, store.Put(ctx, s))
	time.Sleep(5 * time.Millisecond)
	_, err := store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestControllerDoPersists(t *testing.T) {
	ctx := context.Background()
	c := session.NewController(session.NewMemoryStore(0))
	s, err := c.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = c.Do(ctx, s.ID, func(st *session.State) error {
		st.BumpVersion()
		return st.SetFilter("bogus")
	})
	assert.ErrorIs(t, err, session.ErrInvalidFilter)

	got, err := c.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.DataVersion)

	_, err = c.Do(ctx, uuid.New(), func(*session.State) error { return nil })
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestControllerSerializesSession(t *testing.T) {
	ctx := context.Background()
	c := session.NewController(session.NewMemoryStore(0))
	s, err := c.Create(ctx, "alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Do(ctx, s.ID, func(st *session.State) error {
				st.BumpVersion()
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := c.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.DataVersion)
}

// TestRedisStore_Integration requires a running Redis; it is skipped otherwise.
func TestRedisStore_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	store, err := session.NewRedisStore(url, time.Minute)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	s := session.New("alice")
	require.NoError(t, s.SelectOrder(7, view()))
	require.NoError(t, store.Put(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	require.NotNil(t, got.SelectedOrderID)
	assert.Equal(t, int64(7), *got.SelectedOrderID)

	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := session.NewRedisStore("not a url", time.Minute)
	assert.Error(t, err)
}
