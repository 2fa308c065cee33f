package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a menu item has no currency.
const DefaultCurrency = "EUR"

// MenuItem is a priced dish belonging to a restaurant.
type MenuItem struct {
	ID         int64           `json:"id"`
	ExternalID string          `json:"external_id,omitempty"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency,omitempty"`

	// RestaurantID is the durable parent id, nil when unresolved.
	RestaurantID *int64 `json:"restaurant_id,omitempty"`
	// ExternalRestaurantID is the parent's id in the import document.
	ExternalRestaurantID string `json:"external_restaurant_id,omitempty"`

	Status    string    `json:"status"`
	ImageRef  string    `json:"image_ref,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`

	// Restaurant is the joined parent (not always populated).
	Restaurant *Restaurant `json:"restaurant,omitempty"`
}

// Approvers returns the owner of the joined restaurant. Without a loaded
// parent the set is empty and the item cannot be approved.
func (m *MenuItem) Approvers(string) []string {
	if m.Restaurant == nil || strings.TrimSpace(m.Restaurant.OwnerEmail) == "" {
		return nil
	}
	return []string{m.Restaurant.OwnerEmail}
}

// TypeTag implements Item.
func (m *MenuItem) TypeTag() string { return TypeMenuItem }
