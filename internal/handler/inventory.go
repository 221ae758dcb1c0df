package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
)

// InventoryHandler handles the inventory table and manual count changes.
type InventoryHandler struct {
	dashboard
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(d Deps) *InventoryHandler {
	return &InventoryHandler{dashboard{d}}
}

// RegisterRoutes registers inventory endpoints on the given Chi router.
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/updates", h.RequestUpdate)
		r.Post("/updates/confirm", h.ConfirmUpdate)
		r.Post("/updates/cancel", h.CancelUpdate)
		r.Post("/items", h.AddItem)
	})
}

// --- Request / Response types ---

type inventoryUpdateRequest struct {
	ShortName string `json:"short_name"`
	Quantity  *int   `json:"quantity"`
}

type addInventoryItemRequest struct {
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Quantity  int    `json:"quantity"`
}

type inventoryPromptResponse struct {
	ConfirmationRequired bool                           `json:"confirmation_required"`
	Title                string                         `json:"title"`
	Prompt               string                         `json:"prompt"`
	Notes                []string                       `json:"notes"`
	Pending              session.PendingInventoryUpdate `json:"pending"`
}

type inventoryChangeResponse struct {
	Message     string                      `json:"message"`
	Change      fulfillment.InventoryChange `json:"change"`
	DataVersion int64                       `json:"data_version"`
}

type inventoryItemCreatedResponse struct {
	Item        inventoryItemResponse `json:"item"`
	DataVersion int64                 `json:"data_version"`
}

// --- Handlers ---

// List handles GET /inventory.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.Sessions.Get(r.Context(), sid)
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	items, err := warehouse.LoadInventory(r.Context(), h.Gateway)
	if err != nil {
		writeError(w, "list inventory", err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryList(items, st.DataVersion))
}

// RequestUpdate handles POST /inventory/updates. Nothing is written until the
// change is confirmed.
func (h *InventoryHandler) RequestUpdate(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req inventoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ShortName == "" || req.Quantity == nil {
		writeMessage(w, http.StatusBadRequest, "short_name and quantity are required")
		return
	}
	if *req.Quantity < 0 {
		writeMessage(w, http.StatusBadRequest, fulfillment.ErrInvalidQuantity.Error())
		return
	}

	var pending session.PendingInventoryUpdate
	_, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		items, err := warehouse.LoadInventory(r.Context(), h.Gateway)
		if err != nil {
			return err
		}
		item, ok := warehouse.FindInventoryItem(items, req.ShortName)
		if !ok {
			return fmt.Errorf("inventory item %q: %w", req.ShortName, fulfillment.ErrRecordNotFound)
		}
		pending = session.PendingInventoryUpdate{
			ShortName: item.ShortName,
			LongName:  item.LongName,
			Current:   item.Quantity,
			New:       *req.Quantity,
		}
		st.RequestInventoryUpdate(pending)
		return nil
	})
	if err != nil {
		writeError(w, "request inventory update", err)
		return
	}

	writeJSON(w, http.StatusOK, inventoryPromptResponse{
		ConfirmationRequired: true,
		Title:                "Confirm Inventory Update",
		Prompt:               fmt.Sprintf("Are you sure you want to update the inventory count for %s?", pending.LongName),
		Notes: []string{
			fmt.Sprintf("Change %q quantity from %d to %d?", pending.LongName, pending.Current, pending.New),
			"This action will update the inventory count immediately so please be sure it is correct.",
		},
		Pending: pending,
	})
}

// ConfirmUpdate handles POST /inventory/updates/confirm.
func (h *InventoryHandler) ConfirmUpdate(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var change *fulfillment.InventoryChange
	var label string
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		p, err := st.TakeInventoryUpdate()
		if err != nil {
			return err
		}
		change, err = h.Engine.SetInventoryQuantity(r.Context(), p.ShortName, p.New)
		if err != nil {
			return err
		}
		label = p.LongName
		st.BumpVersion()
		return nil
	})
	if err != nil {
		writeError(w, "update inventory", err)
		return
	}

	h.announce(sid, st.DataVersion, gateway.Inventory)
	writeJSON(w, http.StatusOK, inventoryChangeResponse{
		Message:     fmt.Sprintf("Updated %s quantity to %d", label, change.Current),
		Change:      *change,
		DataVersion: st.DataVersion,
	})
}

// CancelUpdate handles POST /inventory/updates/cancel.
func (h *InventoryHandler) CancelUpdate(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		st.CancelInventoryUpdate()
		return nil
	})
	if err != nil {
		writeError(w, "cancel inventory update", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

// AddItem handles POST /inventory/items.
func (h *InventoryHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req addInventoryItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ShortName) == "" {
		writeMessage(w, http.StatusBadRequest, "short_name is required")
		return
	}

	var item warehouse.InventoryItem
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		var err error
		item, err = h.Engine.AddInventoryItem(r.Context(), fulfillment.NewInventoryItem{
			ShortName: req.ShortName,
			LongName:  req.LongName,
			Quantity:  req.Quantity,
		})
		if err != nil {
			return err
		}
		st.BumpVersion()
		return nil
	})
	if err != nil {
		writeError(w, "add inventory item", err)
		return
	}

	h.announce(sid, st.DataVersion, gateway.Inventory)
	writeJSON(w, http.StatusCreated, inventoryItemCreatedResponse{
		Item:        inventoryItemResponse{ShortName: item.ShortName, Description: item.LongName, Quantity: item.Quantity},
		DataVersion: st.DataVersion,
	})
}
