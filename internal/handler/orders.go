package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
)

// OrderHandler handles the order table, detail pane, edit and completion
// endpoints.
type OrderHandler struct {
	dashboard
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(d Deps) *OrderHandler {
	return &OrderHandler{dashboard{d}}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/selected", h.Selected)
		r.Post("/selected/edit", h.BeginEdit)
		r.Post("/selected/edit/cancel", h.CancelEdit)
		r.Put("/selected/edit", h.SaveEdit)
		r.Post("/{id}/complete", h.RequestCompletion)
		r.Post("/{id}/complete/confirm", h.ConfirmCompletion)
		r.Post("/{id}/complete/cancel", h.CancelCompletion)
	})
}

// --- Request / Response types ---

type saveEditRequest struct {
	Items map[string]int `json:"items"`
}

type completionPromptResponse struct {
	ConfirmationRequired bool           `json:"confirmation_required"`
	OrderID              int64          `json:"order_id"`
	Title                string         `json:"title"`
	Prompt               string         `json:"prompt"`
	Notes                []string       `json:"notes"`
	Requested            map[string]int `json:"requested"`
}

type completionResponse struct {
	Message          string                        `json:"message"`
	OrderID          int64                         `json:"order_id"`
	CompletedDate    string                        `json:"completed_date"`
	InventoryChanges []fulfillment.InventoryChange `json:"inventory_changes"`
	DataVersion      int64                         `json:"data_version"`
}

// --- Handlers ---

// List handles GET /orders: the filtered order table from one snapshot.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var view []warehouse.Order
	st, err := h.withView(r.Context(), sid, func(st *session.State, _ *warehouse.Snapshot, v []warehouse.Order) error {
		view = v
		st.ResolveSelection(v)
		return nil
	})
	if err != nil {
		writeError(w, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(st, view))
}

// Selected handles GET /orders/selected: the detail pane (read or edit mode).
func (h *OrderHandler) Selected(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var order warehouse.Order
	st, err := h.withView(r.Context(), sid, func(st *session.State, _ *warehouse.Snapshot, view []warehouse.Order) error {
		o, ok := st.ResolveSelection(view)
		if !ok {
			return session.ErrNoSelection
		}
		order = o
		return nil
	})
	if err != nil {
		writeError(w, "order detail", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetail(order, h.Catalog, st))
}

// BeginEdit handles POST /orders/selected/edit.
func (h *OrderHandler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var order warehouse.Order
	st, err := h.withView(r.Context(), sid, func(st *session.State, _ *warehouse.Snapshot, view []warehouse.Order) error {
		o, err := st.BeginEdit(view)
		order = o
		return err
	})
	if err != nil {
		writeError(w, "begin edit", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetail(order, h.Catalog, st))
}

// CancelEdit handles POST /orders/selected/edit/cancel.
func (h *OrderHandler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		st.EndEdit()
		return nil
	})
	if err != nil {
		writeError(w, "cancel edit", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

// SaveEdit handles PUT /orders/selected/edit. The body carries the full edit
// form; only quantities that differ from the stored order are written.
func (h *OrderHandler) SaveEdit(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req saveEditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Saving leaves edit mode whatever the outcome.
	var res *fulfillment.EditResult
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		editing := st.Editing
		st.EndEdit()
		if err := checkQuantities(req.Items); err != nil {
			return err
		}
		snap, err := warehouse.LoadSnapshot(r.Context(), h.Gateway, h.Catalog)
		if err != nil {
			return err
		}
		o, ok := st.ResolveSelection(snap.FilterOrders(st.StatusFilter))
		if !ok {
			return session.ErrNoSelection
		}
		if !editing {
			return session.ErrNotEditing
		}
		changed, err := diffQuantities(o, req.Items)
		if err != nil {
			return err
		}
		res, err = h.Engine.EditOrder(r.Context(), o.ID, changed)
		if err != nil {
			return err
		}
		if !res.NoOp {
			st.BumpVersion()
		}
		return nil
	})
	if err != nil {
		writeError(w, "save order edit", err)
		return
	}

	if res.NoOp {
		writeJSON(w, http.StatusOK, messageResponse{Message: "No Change to Order", DataVersion: st.DataVersion})
		return
	}
	h.announce(sid, st.DataVersion, gateway.Orders)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Order updated successfully!", DataVersion: st.DataVersion})
}

// RequestCompletion handles POST /orders/{id}/complete. A fulfillable order
// gets a confirmation prompt; otherwise the shortfalls are returned with 409.
func (h *OrderHandler) RequestCompletion(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var check *fulfillment.CompletionCheck
	_, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		var err error
		check, err = h.Engine.CheckCompletion(r.Context(), orderID)
		if err != nil {
			st.CancelCompletion()
			return err
		}
		if !check.Fulfillable() {
			st.CancelCompletion()
			return &fulfillment.RejectedError{OrderID: orderID, Shortfalls: check.Shortfalls}
		}
		st.RequestCompletion(orderID)
		return nil
	})
	if err != nil {
		writeError(w, "check order completion", err)
		return
	}

	writeJSON(w, http.StatusOK, completionPromptResponse{
		ConfirmationRequired: true,
		OrderID:              orderID,
		Title:                "Confirm Order Completion",
		Prompt:               fmt.Sprintf("Are you sure you want to mark Order # %d Complete?", orderID),
		Notes: []string{
			"Orders should be marked complete when the items leave the Warehouse (Learning Center)",
			"This action will automatically update the inventory",
		},
		Requested: check.Requested,
	})
}

// ConfirmCompletion handles POST /orders/{id}/complete/confirm.
func (h *OrderHandler) ConfirmCompletion(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var done *fulfillment.Completion
	var dataChanged bool
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		if err := st.TakeCompletion(orderID); err != nil {
			return err
		}
		var err error
		done, err = h.Engine.CompleteOrder(r.Context(), orderID)
		var partial *fulfillment.PartialCommitError
		if err == nil || errors.As(err, &partial) {
			st.BumpVersion()
			dataChanged = true
		}
		return err
	})
	if dataChanged && st != nil {
		h.announce(sid, st.DataVersion, gateway.Orders, gateway.Inventory)
	}
	if err != nil {
		writeError(w, "complete order", err)
		return
	}

	writeJSON(w, http.StatusOK, completionResponse{
		Message:          fmt.Sprintf("Order #%d for %s marked as completed", done.OrderID, done.Customer),
		OrderID:          done.OrderID,
		CompletedDate:    warehouse.FormatDate(done.CompletedAt),
		InventoryChanges: done.Changes,
		DataVersion:      st.DataVersion,
	})
}

// CancelCompletion handles POST /orders/{id}/complete/cancel.
func (h *OrderHandler) CancelCompletion(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		st.CancelCompletion()
		return nil
	})
	if err != nil {
		writeError(w, "cancel completion", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

// --- Helpers ---

// diffQuantities returns the submitted quantities that differ from the order.
// Keys must be on the order's manifest.
func checkQuantities(submitted map[string]int) error {
	keys := make([]string, 0, len(submitted))
	for k := range submitted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if submitted[k] < 0 {
			return fmt.Errorf("%s: %w", k, fulfillment.ErrInvalidQuantity)
		}
	}
	return nil
}

func diffQuantities(o warehouse.Order, submitted map[string]int) (map[string]int, error) {
	current := o.Quantities()
	keys := make([]string, 0, len(submitted))
	for k := range submitted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changed := map[string]int{}
	for _, k := range keys {
		have, ok := current[k]
		if !ok {
			return nil, fmt.Errorf("order %d: %s: %w", o.ID, k, fulfillment.ErrItemNotOnOrder)
		}
		if submitted[k] != have {
			changed[k] = submitted[k]
		}
	}
	return changed, nil
}
