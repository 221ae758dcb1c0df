package fulfillment

import (
	"fmt"
	"sort"
)

// Shortfall records an item whose requested quantity exceeds what is on hand.
type Shortfall struct {
	Item      string `json:"item"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (s Shortfall) String() string {
	return fmt.Sprintf("%s: Requested %d, Available %d", s.Item, s.Requested, s.Available)
}

// CheckAvailability compares requested quantities (by inventory short name)
// against an inventory snapshot. Every requested item must exist in the
// snapshot; a missing one is a mapping defect, not a shortfall. The result is
// sorted by item and empty when the request can be filled as-is.
func CheckAvailability(requested, inventory map[string]int) ([]Shortfall, error) {
	items := make([]string, 0, len(requested))
	for item := range requested {
		items = append(items, item)
	}
	sort.Strings(items)

	var shortfalls []Shortfall
	for _, item := range items {
		available, ok := inventory[item]
		if !ok {
			return nil, fmt.Errorf("inventory item %q: %w", item, ErrUnknownMappingKey)
		}
		if want := requested[item]; want > available {
			shortfalls = append(shortfalls, Shortfall{Item: item, Requested: want, Available: available})
		}
	}
	return shortfalls, nil
}
