package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/middleware"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/ws"
)

// Reconciler defines the engine methods needed by the dashboard handlers.
// Satisfied by *fulfillment.Engine; narrow interface for testability.
type Reconciler interface {
	EditOrder(ctx context.Context, orderID int64, changed map[string]int) (*fulfillment.EditResult, error)
	CheckCompletion(ctx context.Context, orderID int64) (*fulfillment.CompletionCheck, error)
	CompleteOrder(ctx context.Context, orderID int64) (*fulfillment.Completion, error)
	SetInventoryQuantity(ctx context.Context, shortName string, qty int) (*fulfillment.InventoryChange, error)
	AddInventoryItem(ctx context.Context, req fulfillment.NewInventoryItem) (warehouse.InventoryItem, error)
}

// Sessions defines the session methods needed by the dashboard handlers.
// Satisfied by *session.Controller.
type Sessions interface {
	Get(ctx context.Context, id uuid.UUID) (*session.State, error)
	Do(ctx context.Context, id uuid.UUID, fn func(*session.State) error) (*session.State, error)
}

// Notifier pushes data-version events to websocket clients.
// Satisfied by *ws.Hub.
type Notifier interface {
	BroadcastToSession(sessionID uuid.UUID, event ws.Event)
	BroadcastExcept(sessionID uuid.UUID, event ws.Event)
}

// Deps are the collaborators shared by the dashboard handlers.
type Deps struct {
	Gateway  gateway.Gateway
	Catalog  *catalog.Catalog
	Engine   Reconciler
	Sessions Sessions
	Notifier Notifier // optional
}

type dashboard struct {
	Deps
}

// sessionID returns the caller's session, writing 401 when absent.
func (d *dashboard) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return uuid.Nil, false
	}
	return id, true
}

// withView runs fn under the session lock against a freshly loaded snapshot
// and the session's filtered order view.
func (d *dashboard) withView(ctx context.Context, id uuid.UUID, fn func(st *session.State, snap *warehouse.Snapshot, view []warehouse.Order) error) (*session.State, error) {
	return d.Sessions.Do(ctx, id, func(st *session.State) error {
		snap, err := warehouse.LoadSnapshot(ctx, d.Gateway, d.Catalog)
		if err != nil {
			return err
		}
		return fn(st, snap, snap.FilterOrders(st.StatusFilter))
	})
}

// announce tells the mutating session its new data version and every other
// session which tables changed.
func (d *dashboard) announce(id uuid.UUID, version int64, tables ...gateway.Table) {
	if d.Notifier == nil {
		return
	}
	ev, err := ws.NewEvent(ws.EventDataVersion, map[string]int64{"version": version})
	if err != nil {
		slog.Error("build data_version event", "error", err)
		return
	}
	d.Notifier.BroadcastToSession(id, ev)
	for _, t := range tables {
		ev, err := ws.NewEvent(ws.EventDataChanged, map[string]string{"table": string(t)})
		if err != nil {
			slog.Error("build data_changed event", "error", err)
			return
		}
		d.Notifier.BroadcastExcept(id, ev)
	}
}
