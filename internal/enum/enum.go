package enum

// ── Group A: State machines (written to the remote order layer) ──

const (
	OrderStatusOpen      = "Open"
	OrderStatusCompleted = "Completed"
)

// OrderEditedYes is the only value the order layer uses for the edited marker.
const OrderEditedYes = "Yes"

// ── Group B: View filters ──

const (
	FilterAll       = "All"
	FilterOpen      = "Open"
	FilterCompleted = "Completed"
)

// DefaultFilter is the filter a fresh session starts with.
const DefaultFilter = FilterOpen

// IsValidFilter reports whether f is one of the order-table filter values.
func IsValidFilter(f string) bool {
	switch f {
	case FilterAll, FilterOpen, FilterCompleted:
		return true
	}
	return false
}

// ── Group C: Remote attribute names ──

// Order layer columns.
const (
	OrderAttrID            = "objectid"
	OrderAttrCoach         = "Namebwe"
	OrderAttrStaff         = "ReceivingSWE"
	OrderAttrCommunity     = "Community"
	OrderAttrDate          = "Date"
	OrderAttrStatus        = "status"
	OrderAttrWhenCompleted = "when_completed"
	OrderAttrEdited        = "order_edited"
	OrderAttrLastEdited    = "last_edited"
	OrderAttrProducts      = "Products"
)

// Inventory table columns.
const (
	InventoryAttrShortName = "ShortDesc"
	InventoryAttrLongName  = "LongDesc"
	InventoryAttrQuantity  = "Quantity"
)

// StaffSeparator splits the "Role - Name" value of the staff column.
const StaffSeparator = " - "

// DisplayDateLayout is the date format shown in order tables and details.
const DisplayDateLayout = "02 Jan, 2006"
