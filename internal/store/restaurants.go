package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/jedilnik/internal/model"
)

const restaurantColumns = `r.id, r.external_id, r.name, r.owner_email, r.status,
	r.description, r.address, r.phone, r.image_ref, r.created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRestaurant(s rowScanner) (*model.Restaurant, error) {
	r := &model.Restaurant{}
	var externalID, description, address, phone, imageRef sql.NullString
	err := s.Scan(&r.ID, &externalID, &r.Name, &r.OwnerEmail, &r.Status,
		&description, &address, &phone, &imageRef, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.ExternalID = externalID.String
	r.Description = description.String
	r.Address = address.String
	r.Phone = phone.String
	r.ImageRef = imageRef.String
	return r, nil
}

func queryRestaurants(ctx context.Context, db *sql.DB, query string, args ...any) ([]*model.Restaurant, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var restaurants []*model.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning restaurant: %w", err)
		}
		restaurants = append(restaurants, r)
	}
	return restaurants, rows.Err()
}

// GetRestaurant returns a restaurant by ID.
func GetRestaurant(ctx context.Context, db *sql.DB, id int64) (*model.Restaurant, error) {
	r, err := scanRestaurant(db.QueryRowContext(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants r WHERE r.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting restaurant: %w", err)
	}
	return r, nil
}

// GetRestaurantsByIDs returns the restaurants with the given IDs. Unknown IDs
// are absent from the result.
func GetRestaurantsByIDs(ctx context.Context, db *sql.DB, ids []int64) ([]*model.Restaurant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	restaurants, err := queryRestaurants(ctx, db,
		`SELECT `+restaurantColumns+` FROM restaurants r WHERE r.id IN (`+placeholders+`) ORDER BY r.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("getting restaurants: %w", err)
	}
	return restaurants, nil
}

// ListRestaurantsByStatus returns restaurants with the given status, oldest first.
func ListRestaurantsByStatus(ctx context.Context, db *sql.DB, status string) ([]*model.Restaurant, error) {
	restaurants, err := queryRestaurants(ctx, db,
		`SELECT `+restaurantColumns+` FROM restaurants r WHERE r.status = ? ORDER BY r.id`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s restaurants: %w", strings.ToLower(status), err)
	}
	return restaurants, nil
}

// FetchPendingRestaurants returns every restaurant awaiting approval.
func FetchPendingRestaurants(ctx context.Context, db *sql.DB) ([]*model.Restaurant, error) {
	return ListRestaurantsByStatus(ctx, db, model.StatusPending)
}

// FetchOwnedRestaurants returns restaurants whose owner matches owner
// exactly (case-sensitive).
func FetchOwnedRestaurants(ctx context.Context, db *sql.DB, owner string) ([]*model.Restaurant, error) {
	restaurants, err := queryRestaurants(ctx, db,
		`SELECT `+restaurantColumns+` FROM restaurants r
		 WHERE r.owner_email = ? COLLATE BINARY ORDER BY r.id`, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing owned restaurants: %w", err)
	}
	return restaurants, nil
}

// ApproveRestaurants moves the given pending restaurants to Approved in one
// transaction. Unknown or already approved IDs are ignored. Returns the
// number of restaurants that changed.
func ApproveRestaurants(ctx context.Context, db *sql.DB, ids []int64) (int64, error) {
	n, err := approve(ctx, db, "restaurants", ids)
	if err != nil {
		return 0, fmt.Errorf("approving restaurants: %w", err)
	}
	return n, nil
}

func approve(ctx context.Context, db *sql.DB, table string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders, args := inClause(ids)
	args = append([]any{model.StatusApproved}, args...)
	args = append(args, model.StatusPending)

	result, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET status = ? WHERE id IN (`+placeholders+`) AND status = ?`,
		args...,
	)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting updated rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return n, nil
}

// inClause builds "?, ?, ?" placeholders and the matching arguments.
func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}
