// Package approval gates Pending to Approved transitions on the approver
// sets of the targeted items.
package approval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/erazemk/jedilnik/internal/model"
	"github.com/erazemk/jedilnik/internal/store"
)

var (
	// ErrUnauthenticated is returned when no principal is established.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden is returned when the principal may not approve every
	// targeted item.
	ErrForbidden = errors.New("not allowed to approve the selected items")
)

// Principal is the acting caller.
type Principal struct {
	Email         string
	Authenticated bool
}

// Outcome is the advisory result of an approval action.
type Outcome struct {
	Message  string `json:"message"`
	Approved int64  `json:"approved"`
}

// Authorizer checks approval rights against the durable store.
type Authorizer struct {
	DB *sql.DB
	// SiteAdmin is the principal that approves restaurants.
	SiteAdmin string
}

// IsSiteAdmin reports whether p is the authenticated site administrator.
func (a *Authorizer) IsSiteAdmin(p Principal) bool {
	return p.Authenticated && a.SiteAdmin != "" && strings.EqualFold(p.Email, a.SiteAdmin)
}

// AuthorizeRestaurants returns nil only if p may approve every restaurant in ids.
func (a *Authorizer) AuthorizeRestaurants(ctx context.Context, p Principal, ids []int64) error {
	if !p.Authenticated {
		return ErrUnauthenticated
	}
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}

	restaurants, err := store.GetRestaurantsByIDs(ctx, a.DB, ids)
	if err != nil {
		return fmt.Errorf("loading restaurants: %w", err)
	}
	items := make([]model.Item, len(restaurants))
	for i, r := range restaurants {
		items[i] = r
	}
	return a.check(p, len(ids), items)
}

// AuthorizeMenuItems returns nil only if p may approve every menu item in ids.
func (a *Authorizer) AuthorizeMenuItems(ctx context.Context, p Principal, ids []int64) error {
	if !p.Authenticated {
		return ErrUnauthenticated
	}
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}

	menuItems, err := store.GetMenuItemsByIDs(ctx, a.DB, ids)
	if err != nil {
		return fmt.Errorf("loading menu items: %w", err)
	}
	items := make([]model.Item, len(menuItems))
	for i, m := range menuItems {
		items[i] = m
	}
	return a.check(p, len(ids), items)
}

// check denies the whole batch if an id did not resolve or any item
// rejects the principal.
func (a *Authorizer) check(p Principal, want int, items []model.Item) error {
	if len(items) != want {
		return ErrForbidden
	}
	for _, item := range items {
		if !model.CanApprove(item, a.SiteAdmin, p.Email) {
			return ErrForbidden
		}
	}
	return nil
}

// ApproveRestaurants authorizes p and approves the restaurants in ids.
func (a *Authorizer) ApproveRestaurants(ctx context.Context, p Principal, ids []int64) (Outcome, error) {
	if err := a.AuthorizeRestaurants(ctx, p, ids); err != nil {
		return Outcome{}, err
	}
	if len(ids) == 0 {
		return Outcome{Message: "No restaurants selected."}, nil
	}

	n, err := store.ApproveRestaurants(ctx, a.DB, unique(ids))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "Selected restaurants have been approved.", Approved: n}, nil
}

// ApproveMenuItems authorizes p and approves the menu items in ids.
func (a *Authorizer) ApproveMenuItems(ctx context.Context, p Principal, ids []int64) (Outcome, error) {
	if err := a.AuthorizeMenuItems(ctx, p, ids); err != nil {
		return Outcome{}, err
	}
	if len(ids) == 0 {
		return Outcome{Message: "No menu items selected."}, nil
	}

	n, err := store.ApproveMenuItems(ctx, a.DB, unique(ids))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "Selected menu items have been approved.", Approved: n}, nil
}

func unique(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
