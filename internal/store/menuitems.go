package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/jedilnik/internal/model"
	"github.com/shopspring/decimal"
)

const menuItemColumns = `m.id, m.external_id, m.title, m.price, m.currency, m.restaurant_id,
	m.external_restaurant_id, m.status, m.image_ref, m.created_at`

func scanMenuItem(s rowScanner, joined bool) (*model.MenuItem, error) {
	m := &model.MenuItem{}
	var externalID, currency, externalRestaurantID, imageRef sql.NullString
	var restaurantID sql.NullInt64
	var price string

	dest := []any{&m.ID, &externalID, &m.Title, &price, &currency, &restaurantID,
		&externalRestaurantID, &m.Status, &imageRef, &m.CreatedAt}

	var (
		rID                                  sql.NullInt64
		rExternalID, rName, rOwner, rStatus  sql.NullString
		rDescription, rAddress, rPhone, rImg sql.NullString
		rCreatedAt                           sql.NullTime
	)
	if joined {
		dest = append(dest, &rID, &rExternalID, &rName, &rOwner, &rStatus,
			&rDescription, &rAddress, &rPhone, &rImg, &rCreatedAt)
	}

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parsing price %q: %w", price, err)
	}
	m.Price = p
	m.ExternalID = externalID.String
	m.Currency = currency.String
	m.ExternalRestaurantID = externalRestaurantID.String
	m.ImageRef = imageRef.String
	if restaurantID.Valid {
		id := restaurantID.Int64
		m.RestaurantID = &id
	}

	if joined && rID.Valid {
		m.Restaurant = &model.Restaurant{
			ID:          rID.Int64,
			ExternalID:  rExternalID.String,
			Name:        rName.String,
			OwnerEmail:  rOwner.String,
			Status:      rStatus.String,
			Description: rDescription.String,
			Address:     rAddress.String,
			Phone:       rPhone.String,
			ImageRef:    rImg.String,
			CreatedAt:   rCreatedAt.Time,
		}
	}
	return m, nil
}

func queryMenuItems(ctx context.Context, db *sql.DB, joined bool, query string, args ...any) ([]*model.MenuItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*model.MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows, joined)
		if err != nil {
			return nil, fmt.Errorf("scanning menu item: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// GetMenuItem returns a menu item by ID with its restaurant joined.
func GetMenuItem(ctx context.Context, db *sql.DB, id int64) (*model.MenuItem, error) {
	m, err := scanMenuItem(db.QueryRowContext(ctx,
		`SELECT `+menuItemColumns+`, `+restaurantColumns+`
		 FROM menu_items m LEFT JOIN restaurants r ON r.id = m.restaurant_id
		 WHERE m.id = ?`, id,
	), true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting menu item: %w", err)
	}
	return m, nil
}

// GetMenuItemsByIDs returns the menu items with the given IDs, each joined
// with its restaurant when linked. Unknown IDs are absent from the result.
func GetMenuItemsByIDs(ctx context.Context, db *sql.DB, ids []int64) ([]*model.MenuItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	items, err := queryMenuItems(ctx, db, true,
		`SELECT `+menuItemColumns+`, `+restaurantColumns+`
		 FROM menu_items m LEFT JOIN restaurants r ON r.id = m.restaurant_id
		 WHERE m.id IN (`+placeholders+`) ORDER BY m.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("getting menu items: %w", err)
	}
	return items, nil
}

// ListMenuItemsByStatus returns menu items with the given status, oldest first.
func ListMenuItemsByStatus(ctx context.Context, db *sql.DB, status string) ([]*model.MenuItem, error) {
	items, err := queryMenuItems(ctx, db, false,
		`SELECT `+menuItemColumns+` FROM menu_items m WHERE m.status = ? ORDER BY m.id`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	return items, nil
}

// FetchPendingMenuItems returns the pending menu items of one restaurant.
func FetchPendingMenuItems(ctx context.Context, db *sql.DB, restaurantID int64) ([]*model.MenuItem, error) {
	items, err := queryMenuItems(ctx, db, true,
		`SELECT `+menuItemColumns+`, `+restaurantColumns+`
		 FROM menu_items m JOIN restaurants r ON r.id = m.restaurant_id
		 WHERE m.restaurant_id = ? AND m.status = ? ORDER BY m.id`,
		restaurantID, model.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending menu items: %w", err)
	}
	return items, nil
}

// ApproveMenuItems moves the given pending menu items to Approved in one
// transaction. Unknown or already approved IDs are ignored.
func ApproveMenuItems(ctx context.Context, db *sql.DB, ids []int64) (int64, error) {
	n, err := approve(ctx, db, "menu_items", ids)
	if err != nil {
		return 0, fmt.Errorf("approving menu items: %w", err)
	}
	return n, nil
}
