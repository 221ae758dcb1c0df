package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/auth"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
)

type errorResponse struct {
	Error      string                  `json:"error"`
	Issues     []string                `json:"issues,omitempty"`
	Shortfalls []fulfillment.Shortfall `json:"shortfalls,omitempty"`
	Partial    bool                    `json:"partial,omitempty"`
	FailedStep string                  `json:"failed_step,omitempty"`
	OrderID    int64                   `json:"order_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode JSON response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps domain errors onto HTTP responses. op names the failing
// operation in logs.
func writeError(w http.ResponseWriter, op string, err error) {
	var rejected *fulfillment.RejectedError
	var partial *fulfillment.PartialCommitError

	switch {
	case errors.As(err, &rejected):
		issues := make([]string, len(rejected.Shortfalls))
		for i, s := range rejected.Shortfalls {
			issues[i] = s.String()
		}
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:      "There are not enough items in inventory to fulfill this order.",
			Issues:     issues,
			Shortfalls: rejected.Shortfalls,
			OrderID:    rejected.OrderID,
		})

	case errors.As(err, &partial):
		slog.Error(op, "order_id", partial.OrderID, "failed_step", partial.Step, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:      "order was marked completed but the inventory update failed; correct the inventory counts",
			Partial:    true,
			FailedStep: partial.Step,
			OrderID:    partial.OrderID,
		})

	case errors.Is(err, auth.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid login credentials!")
	case errors.Is(err, session.ErrNotFound):
		writeMessage(w, http.StatusUnauthorized, "session expired")

	case errors.Is(err, fulfillment.ErrUnknownMappingKey):
		slog.Error(op+": mapping error", "error", err)
		writeMessage(w, http.StatusInternalServerError, "product mapping is out of date")

	case errors.Is(err, fulfillment.ErrRecordNotFound), errors.Is(err, gateway.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "record not found")

	case fulfillment.IsRemoteFailure(err):
		slog.Error(op+": remote failure", "error", err)
		writeMessage(w, http.StatusBadGateway, "remote data service unavailable")

	case errors.Is(err, fulfillment.ErrOrderNotOpen),
		errors.Is(err, fulfillment.ErrDuplicateItem),
		errors.Is(err, session.ErrNoSelection),
		errors.Is(err, session.ErrNotEditing),
		errors.Is(err, session.ErrNotInView),
		errors.Is(err, session.ErrNoPendingConfirmation):
		writeMessage(w, http.StatusConflict, err.Error())

	case errors.Is(err, fulfillment.ErrInvalidQuantity),
		errors.Is(err, fulfillment.ErrItemNotOnOrder),
		errors.Is(err, fulfillment.ErrInvalidShortName),
		errors.Is(err, session.ErrInvalidFilter),
		errors.Is(err, session.ErrRowOutOfRange):
		writeMessage(w, http.StatusBadRequest, err.Error())

	default:
		slog.Error(op, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func orderIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
