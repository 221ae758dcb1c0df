package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
)

// SessionHandler handles view-state endpoints.
type SessionHandler struct {
	dashboard
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(d Deps) *SessionHandler {
	return &SessionHandler{dashboard{d}}
}

// RegisterRoutes registers view-state endpoints on the given Chi router.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.Get)
	r.Put("/session/filter", h.SetFilter)
	r.Put("/session/selection", h.Select)
	r.Delete("/session/selection", h.ClearSelection)
}

type filterRequest struct {
	Filter string `json:"filter"`
}

// selectionRequest names an order by id or by its row in the current view.
type selectionRequest struct {
	OrderID *int64 `json:"order_id"`
	Row     *int   `json:"row"`
}

// Get handles GET /session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.Sessions.Get(r.Context(), sid)
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

// SetFilter handles PUT /session/filter.
func (h *SessionHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req filterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		return st.SetFilter(req.Filter)
	})
	if err != nil {
		writeError(w, "set filter", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

// Select handles PUT /session/selection.
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.OrderID == nil) == (req.Row == nil) {
		writeMessage(w, http.StatusBadRequest, "exactly one of order_id or row is required")
		return
	}

	st, err := h.withView(r.Context(), sid, func(st *session.State, _ *warehouse.Snapshot, view []warehouse.Order) error {
		if req.Row != nil {
			return st.SelectRow(*req.Row, view)
		}
		return st.SelectOrder(*req.OrderID, view)
	})
	if err != nil {
		writeError(w, "select order", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

// ClearSelection handles DELETE /session/selection.
func (h *SessionHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	st, err := h.Sessions.Do(r.Context(), sid, func(st *session.State) error {
		st.ClearSelection()
		return nil
	})
	if err != nil {
		writeError(w, "clear selection", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}
