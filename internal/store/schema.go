package store

import (
	"context"
	"fmt"
)

// schema is written in the subset of SQL shared by postgres and sqlite.
// Ids are generated by the application and timestamps are always UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		phone TEXT,
		date_of_birth TEXT,
		role TEXT NOT NULL DEFAULT 'consumer',
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_expires_at TIMESTAMP,
		failed_login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until TIMESTAMP,
		password_reset_token TEXT,
		password_reset_expires_at TIMESTAMP,
		last_login_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS farmers (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		farm_name TEXT,
		farm_description TEXT,
		farm_street TEXT,
		farm_city TEXT,
		farm_state TEXT,
		farm_zip_code TEXT,
		farming_practices TEXT NOT NULL DEFAULT '[]',
		profile_completed BOOLEAN NOT NULL DEFAULT FALSE,
		profile_completion_step INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		dietary_preferences TEXT NOT NULL DEFAULT '[]',
		communication_preferences TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		label TEXT,
		street TEXT NOT NULL,
		city TEXT NOT NULL,
		state TEXT NOT NULL,
		zip_code TEXT NOT NULL,
		delivery_instructions TEXT,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_addresses_user ON addresses(user_id)`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		payment_type TEXT NOT NULL,
		provider TEXT,
		token TEXT NOT NULL UNIQUE,
		last_four TEXT,
		expiry_month INTEGER,
		expiry_year INTEGER,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_methods_user ON payment_methods(user_id)`,
	`CREATE TABLE IF NOT EXISTS farmer_bank_accounts (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL UNIQUE REFERENCES farmers(id) ON DELETE CASCADE,
		account_holder_name TEXT NOT NULL,
		account_number_encrypted TEXT NOT NULL,
		routing_number_encrypted TEXT NOT NULL,
		account_last_four TEXT NOT NULL,
		bank_name TEXT,
		account_type TEXT NOT NULL DEFAULT 'checking',
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL REFERENCES farmers(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		price NUMERIC(10,2) NOT NULL CHECK (price > 0),
		unit TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		low_stock_threshold INTEGER NOT NULL DEFAULT 10 CHECK (low_stock_threshold >= 0),
		status TEXT NOT NULL DEFAULT 'active',
		images TEXT NOT NULL DEFAULT '[]',
		seasonality TEXT NOT NULL DEFAULT '["Year-round"]',
		version INTEGER NOT NULL DEFAULT 1 CHECK (version >= 1),
		discount_type TEXT,
		discount_value NUMERIC(10,2),
		discount_start_date TIMESTAMP,
		discount_end_date TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_farmer ON products(farmer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_catalog ON products(status, category)`,
	`CREATE TABLE IF NOT EXISTS bulk_pricing (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		min_quantity INTEGER NOT NULL CHECK (min_quantity > 0),
		price NUMERIC(10,2) NOT NULL CHECK (price > 0),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (product_id, min_quantity)
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		previous_price NUMERIC(10,2) NOT NULL,
		new_price NUMERIC(10,2) NOT NULL,
		change_type TEXT NOT NULL,
		changed_by TEXT,
		change_reason TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		unit_price NUMERIC(10,2) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (cart_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		subtotal NUMERIC(10,2) NOT NULL,
		tax_amount NUMERIC(10,2) NOT NULL,
		total_amount NUMERIC(10,2) NOT NULL,
		status TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		farmer_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		unit_price NUMERIC(10,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)`,
	`CREATE TABLE IF NOT EXISTS wishlist_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS low_stock_alerts (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL REFERENCES farmers(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		product_name TEXT NOT NULL,
		previous_quantity INTEGER NOT NULL,
		current_quantity INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		alert_type TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		processed_at TIMESTAMP NOT NULL
	)`,
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
