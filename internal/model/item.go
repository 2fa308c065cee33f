package model

import (
	"errors"
	"strings"
)

// Item statuses. Approved is terminal and only reachable from Pending.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
)

// Item type tags.
const (
	TypeRestaurant = "restaurant"
	TypeMenuItem   = "menuItem"
)

// Item is a catalog entry that can be moderated.
type Item interface {
	// Approvers returns the principals allowed to approve the item.
	// An empty result means nobody may approve it.
	Approvers(siteAdmin string) []string
	// TypeTag identifies the variant for grouping and rendering.
	TypeTag() string
}

// CanApprove reports whether principal is in the item's approver set.
// Principals are compared case-insensitively. An empty approver set or an
// empty principal never matches.
func CanApprove(item Item, siteAdmin, principal string) bool {
	if item == nil || strings.TrimSpace(principal) == "" {
		return false
	}
	for _, a := range item.Approvers(siteAdmin) {
		if a != "" && strings.EqualFold(a, principal) {
			return true
		}
	}
	return false
}

// ErrInvalidStatus is returned for a status outside Pending and Approved.
var ErrInvalidStatus = errors.New("invalid status")

// NormalizeStatus maps status case-insensitively onto Pending or Approved.
// A blank status yields "" and true; anything else yields false.
func NormalizeStatus(status string) (string, bool) {
	status = strings.TrimSpace(status)
	switch {
	case status == "":
		return "", true
	case strings.EqualFold(status, StatusPending):
		return StatusPending, true
	case strings.EqualFold(status, StatusApproved):
		return StatusApproved, true
	default:
		return "", false
	}
}


// CloneItem returns a copy of item that shares no mutable state with it.
func CloneItem(item Item) Item {
	switch v := item.(type) {
	case *Restaurant:
		c := *v
		return &c
	case *MenuItem:
		c := *v
		if v.RestaurantID != nil {
			id := *v.RestaurantID
			c.RestaurantID = &id
		}
		if v.Restaurant != nil {
			r := *v.Restaurant
			c.Restaurant = &r
		}
		return &c
	default:
		return item
	}
}

// CloneItems copies every item in items.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = CloneItem(it)
	}
	return out
}
