package model

import "time"

// Restaurant is a venue listed in the catalog.
type Restaurant struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Name        string    `json:"name"`
	OwnerEmail  string    `json:"owner_email"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Address     string    `json:"address,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Approvers returns the site administrator only; owners never approve
// their own restaurant.
func (r *Restaurant) Approvers(siteAdmin string) []string {
	if siteAdmin == "" {
		return nil
	}
	return []string{siteAdmin}
}

// TypeTag implements Item.
func (r *Restaurant) TypeTag() string { return TypeRestaurant }
