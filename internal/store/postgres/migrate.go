package postgres

import (
	"context"
	"fmt"
)

// migrate applies the schema idempotently on startup. The deployment has a
// single writer, so plain CREATE IF NOT EXISTS statements are enough.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL,
		client_email TEXT NOT NULL,
		client_phone TEXT NOT NULL DEFAULT '',
		client_address TEXT NOT NULL DEFAULT '',
		items JSONB,
		subtotal NUMERIC(18,2) NOT NULL DEFAULT 0,
		tax_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
		total_amount NUMERIC(18,2) NOT NULL,
		status TEXT NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		payment_terms TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		source_order_id TEXT NOT NULL DEFAULT '',
		version INT NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_source_order ON invoices (source_order_id) WHERE source_order_id <> ''`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL,
		customer_email TEXT NOT NULL DEFAULT '',
		amount NUMERIC(18,2) NOT NULL,
		status TEXT NOT NULL,
		order_date TIMESTAMPTZ NOT NULL,
		product_details JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders (order_date)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		amount NUMERIC(18,2) NOT NULL,
		expense_date TIMESTAMPTZ NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_expense_date ON expenses (expense_date)`,
	`CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor_username TEXT NOT NULL DEFAULT '',
		actor_role TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
