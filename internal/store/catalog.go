package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/jedilnik/internal/model"
)

// FetchApproved returns every approved restaurant followed by every approved
// menu item.
func FetchApproved(ctx context.Context, db *sql.DB) ([]model.Item, error) {
	return fetchCatalog(ctx, db,
		`WHERE r.status = '`+model.StatusApproved+`'`,
		`WHERE m.status = '`+model.StatusApproved+`'`,
	)
}

// FetchAll returns every restaurant and menu item regardless of status.
func FetchAll(ctx context.Context, db *sql.DB) ([]model.Item, error) {
	return fetchCatalog(ctx, db, "", "")
}

func fetchCatalog(ctx context.Context, db *sql.DB, restaurantFilter, menuItemFilter string) ([]model.Item, error) {
	restaurants, err := queryRestaurants(ctx, db,
		`SELECT `+restaurantColumns+` FROM restaurants r `+restaurantFilter+` ORDER BY r.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing catalog restaurants: %w", err)
	}

	menuItems, err := queryMenuItems(ctx, db, true,
		`SELECT `+menuItemColumns+`, `+restaurantColumns+`
		 FROM menu_items m LEFT JOIN restaurants r ON r.id = m.restaurant_id
		 `+menuItemFilter+` ORDER BY m.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing catalog menu items: %w", err)
	}

	items := make([]model.Item, 0, len(restaurants)+len(menuItems))
	for _, r := range restaurants {
		items = append(items, r)
	}
	for _, m := range menuItems {
		items = append(items, m)
	}
	return items, nil
}

// Commit inserts items in a single transaction and returns copies carrying
// their new IDs, in input order. Items with a blank status are stored as
// Pending. The input slice is not modified.
//
// A menu item's restaurant is resolved from its explicit RestaurantID, then
// a restaurant in the same batch with a matching external id, then the
// newest stored restaurant with that external id. Unresolved items are
// stored without a restaurant.
func Commit(ctx context.Context, db *sql.DB, items []model.Item) ([]model.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	committed := model.CloneItems(items)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Restaurants first so menu items can link to them.
	batch := make(map[string]int64)
	for _, item := range committed {
		r, ok := item.(*model.Restaurant)
		if !ok {
			continue
		}
		if err := insertRestaurant(ctx, tx, r); err != nil {
			return nil, err
		}
		if r.ExternalID != "" {
			batch[r.ExternalID] = r.ID
		}
	}

	for _, item := range committed {
		switch v := item.(type) {
		case *model.Restaurant:
		case *model.MenuItem:
			id, err := resolveRestaurant(ctx, tx, v, batch)
			if err != nil {
				return nil, err
			}
			v.RestaurantID = id
			v.Restaurant = nil
			if err := insertMenuItem(ctx, tx, v); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("committing item: unsupported type %T", item)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return committed, nil
}

func insertRestaurant(ctx context.Context, tx *sql.Tx, r *model.Restaurant) error {
	status, err := storedStatus(r.Status)
	if err != nil {
		return fmt.Errorf("inserting restaurant %q: %w", r.Name, err)
	}
	r.Status = status

	result, err := tx.ExecContext(ctx,
		`INSERT INTO restaurants (external_id, name, owner_email, status, description, address, phone, image_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(r.ExternalID), r.Name, r.OwnerEmail, r.Status,
		nullString(r.Description), nullString(r.Address), nullString(r.Phone), nullString(r.ImageRef),
	)
	if err != nil {
		return fmt.Errorf("inserting restaurant: %w", err)
	}

	r.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting restaurant id: %w", err)
	}
	return nil
}

func insertMenuItem(ctx context.Context, tx *sql.Tx, m *model.MenuItem) error {
	status, err := storedStatus(m.Status)
	if err != nil {
		return fmt.Errorf("inserting menu item %q: %w", m.Title, err)
	}
	m.Status = status
	if m.Currency == "" {
		m.Currency = model.DefaultCurrency
	}
	m.Price = m.Price.Round(2)

	result, err := tx.ExecContext(ctx,
		`INSERT INTO menu_items (external_id, title, price, currency, restaurant_id, external_restaurant_id, status, image_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(m.ExternalID), m.Title, m.Price.StringFixed(2), m.Currency, nullInt64(m.RestaurantID),
		nullString(m.ExternalRestaurantID), m.Status, nullString(m.ImageRef),
	)
	if err != nil {
		return fmt.Errorf("inserting menu item: %w", err)
	}

	m.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting menu item id: %w", err)
	}
	return nil
}

func resolveRestaurant(ctx context.Context, tx *sql.Tx, m *model.MenuItem, batch map[string]int64) (*int64, error) {
	if m.RestaurantID != nil {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM restaurants WHERE id = ?`, *m.RestaurantID,
		).Scan(&id)
		if err == nil {
			return &id, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("checking restaurant %d: %w", *m.RestaurantID, err)
		}
	}

	if m.ExternalRestaurantID == "" {
		return nil, nil
	}

	if id, ok := batch[m.ExternalRestaurantID]; ok {
		return &id, nil
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM restaurants WHERE external_id = ? ORDER BY id DESC LIMIT 1`,
		m.ExternalRestaurantID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving restaurant %q: %w", m.ExternalRestaurantID, err)
	}
	return &id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// storedStatus returns the status an item is persisted with. Blank means
// Pending.
func storedStatus(status string) (string, error) {
	s, ok := model.NormalizeStatus(status)
	if !ok {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	if s == "" {
		return model.StatusPending, nil
	}
	return s, nil
}
