package handler

import (
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/warehouse"
)

// --- Response types ---

type sessionResponse struct {
	ID                string                          `json:"id"`
	Username          string                          `json:"username"`
	StatusFilter      string                          `json:"status_filter"`
	SelectedOrderID   *int64                          `json:"selected_order_id"`
	Editing           bool                            `json:"editing"`
	DataVersion       int64                           `json:"data_version"`
	PendingCompletion *int64                          `json:"pending_completion"`
	PendingInventory  *session.PendingInventoryUpdate `json:"pending_inventory"`
}

type orderRowResponse struct {
	OrderID     int64  `json:"order_id"`
	PlayerCoach string `json:"player_coach"`
	Date        string `json:"date"`
	SWE         string `json:"swe"`
	Community   string `json:"community"`
	Status      string `json:"status"`
}

type orderListResponse struct {
	StatusFilter string             `json:"status_filter"`
	DataVersion  int64              `json:"data_version"`
	Orders       []orderRowResponse `json:"orders"`
	SelectedRow  *int               `json:"selected_row"`
}

type orderItemResponse struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Quantity    int    `json:"quantity"`
}

type orderDetailResponse struct {
	Mode          string              `json:"mode"` // "read" or "edit"
	OrderID       int64               `json:"order_id"`
	PlayerCoach   string              `json:"player_coach"`
	SWE           string              `json:"swe"`
	Community     string              `json:"community"`
	Date          string              `json:"date"`
	Status        string              `json:"status"`
	CompletedDate string              `json:"completed_date,omitempty"`
	Edited        bool                `json:"edited"`
	Items         []orderItemResponse `json:"items"`
	CanEdit       bool                `json:"can_edit"`
	CanComplete   bool                `json:"can_complete"`
	DataVersion   int64               `json:"data_version"`
}

type inventoryItemResponse struct {
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type inventoryChoice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type inventoryListResponse struct {
	DataVersion int64                   `json:"data_version"`
	Items       []inventoryItemResponse `json:"items"`
	Choices     []inventoryChoice       `json:"choices"`
}

type messageResponse struct {
	Message     string `json:"message"`
	DataVersion int64  `json:"data_version"`
}

func toSessionResponse(st *session.State) sessionResponse {
	return sessionResponse{
		ID:                st.ID.String(),
		Username:          st.Username,
		StatusFilter:      st.StatusFilter,
		SelectedOrderID:   st.SelectedOrderID,
		Editing:           st.Editing,
		DataVersion:       st.DataVersion,
		PendingCompletion: st.PendingCompletion,
		PendingInventory:  st.PendingInventory,
	}
}

func toOrderRow(o warehouse.Order) orderRowResponse {
	return orderRowResponse{
		OrderID:     o.ID,
		PlayerCoach: o.Coach,
		Date:        warehouse.FormatDate(o.Date),
		SWE:         o.StaffName(),
		Community:   o.Community,
		Status:      o.Status,
	}
}

func toOrderList(st *session.State, view []warehouse.Order) orderListResponse {
	resp := orderListResponse{
		StatusFilter: st.StatusFilter,
		DataVersion:  st.DataVersion,
		Orders:       make([]orderRowResponse, len(view)),
	}
	for i, o := range view {
		resp.Orders[i] = toOrderRow(o)
		if st.SelectedOrderID != nil && *st.SelectedOrderID == o.ID {
			row := i
			resp.SelectedRow = &row
		}
	}
	return resp
}

func toOrderDetail(o warehouse.Order, cat *catalog.Catalog, st *session.State) orderDetailResponse {
	resp := orderDetailResponse{
		Mode:        "read",
		OrderID:     o.ID,
		PlayerCoach: o.Coach,
		SWE:         o.StaffName(),
		Community:   o.Community,
		Date:        warehouse.FormatDate(o.Date),
		Status:      o.Status,
		Edited:      o.Edited,
		Items:       make([]orderItemResponse, len(o.Items)),
		CanEdit:     o.IsOpen(),
		CanComplete: o.IsOpen(),
		DataVersion: st.DataVersion,
	}
	if st.Editing {
		resp.Mode = "edit"
	}
	if o.CompletedAt != nil {
		resp.CompletedDate = warehouse.FormatDate(*o.CompletedAt)
	}
	for i, it := range o.Items {
		resp.Items[i] = orderItemResponse{
			Key:         it.Key,
			DisplayName: cat.ToDisplayName(it.Key),
			Quantity:    it.Quantity,
		}
	}
	return resp
}

func toInventoryList(items []warehouse.InventoryItem, version int64) inventoryListResponse {
	resp := inventoryListResponse{
		DataVersion: version,
		Items:       make([]inventoryItemResponse, len(items)),
		Choices:     make([]inventoryChoice, len(items)),
	}
	for i, it := range items {
		resp.Items[i] = inventoryItemResponse{ShortName: it.ShortName, Description: it.LongName, Quantity: it.Quantity}
		resp.Choices[i] = inventoryChoice{Value: it.ShortName, Label: it.LongName}
	}
	return resp
}
