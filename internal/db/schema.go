package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email COLLATE NOCASE) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS restaurants (
    id          INTEGER PRIMARY KEY,
    external_id TEXT,
    name        TEXT NOT NULL,
    owner_email TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'Pending',
    description TEXT,
    address     TEXT,
    phone       TEXT,
    image_ref   TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_restaurants_status ON restaurants(status);
CREATE INDEX IF NOT EXISTS idx_restaurants_owner ON restaurants(owner_email);
CREATE INDEX IF NOT EXISTS idx_restaurants_external ON restaurants(external_id);

CREATE TABLE IF NOT EXISTS menu_items (
    id                     INTEGER PRIMARY KEY,
    external_id            TEXT,
    title                  TEXT NOT NULL,
    price                  TEXT NOT NULL DEFAULT '0',
    currency               TEXT CHECK (currency IS NULL OR length(currency) = 3),
    restaurant_id          INTEGER REFERENCES restaurants(id),
    external_restaurant_id TEXT,
    status                 TEXT NOT NULL DEFAULT 'Pending',
    image_ref              TEXT,
    created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_menu_items_restaurant_status ON menu_items(restaurant_id, status);
CREATE INDEX IF NOT EXISTS idx_menu_items_status ON menu_items(status);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
