package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/erazemk/jedilnik/internal/model"
	"github.com/erazemk/jedilnik/internal/store"
)

// Queue kinds.
const (
	QueuePendingRestaurants = "pendingRestaurants"
	QueueOwnedRestaurants   = "ownedRestaurants"
	QueuePendingMenuItems   = "pendingMenuItems"
)

// Queue is the verification work list shown to one principal.
type Queue struct {
	Kind        string              `json:"kind"`
	Restaurants []*model.Restaurant `json:"restaurants,omitempty"`
	// Restaurant is the selected restaurant for a menu item queue.
	Restaurant *model.Restaurant `json:"restaurant,omitempty"`
	MenuItems  []*model.MenuItem `json:"menu_items,omitempty"`
}

// Queue picks the work list for p. The site administrator always gets the
// pending restaurants. Anyone else gets the restaurants they own, or the
// pending menu items of restaurantID once one of them is selected.
func (a *Authorizer) Queue(ctx context.Context, p Principal, restaurantID int64) (*Queue, error) {
	if !p.Authenticated {
		return nil, ErrUnauthenticated
	}

	if a.IsSiteAdmin(p) {
		restaurants, err := store.FetchPendingRestaurants(ctx, a.DB)
		if err != nil {
			return nil, err
		}
		return &Queue{Kind: QueuePendingRestaurants, Restaurants: restaurants}, nil
	}

	if restaurantID == 0 {
		owned, err := store.FetchOwnedRestaurants(ctx, a.DB, p.Email)
		if err != nil {
			return nil, err
		}
		return &Queue{Kind: QueueOwnedRestaurants, Restaurants: owned}, nil
	}

	restaurant, err := store.GetRestaurant(ctx, a.DB, restaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant == nil || !strings.EqualFold(restaurant.OwnerEmail, p.Email) {
		return nil, ErrForbidden
	}

	menuItems, err := store.FetchPendingMenuItems(ctx, a.DB, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("loading queue for restaurant %d: %w", restaurantID, err)
	}
	return &Queue{Kind: QueuePendingMenuItems, Restaurant: restaurant, MenuItems: menuItems}, nil
}
