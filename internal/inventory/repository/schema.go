package repository

import (
	"context"
	"fmt"

	"github.com/stockscan/stockscan-backend/pkg/database"
)

// Schema returns the inventory service DDL. Every statement is idempotent.
func Schema() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		`CREATE TABLE IF NOT EXISTS warehouses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sku VARCHAR(100) NOT NULL CONSTRAINT products_sku_key UNIQUE,
			barcode VARCHAR(100) CONSTRAINT products_barcode_key UNIQUE,
			name VARCHAR(255) NOT NULL,
			brand VARCHAR(255) NOT NULL,
			category VARCHAR(100) NOT NULL,
			uom VARCHAR(50) NOT NULL,
			size VARCHAR(100) NOT NULL,
			supplier VARCHAR(255) NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS inventory (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			product_id UUID NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			warehouse_id UUID NOT NULL REFERENCES warehouses(id),
			current_quantity INT NOT NULL DEFAULT 0,
			previous_quantity INT NOT NULL DEFAULT 0,
			qty_per_pack INT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT inventory_quantity_nonnegative CHECK (current_quantity >= 0),
			CONSTRAINT inventory_qty_per_pack_positive CHECK (qty_per_pack > 0),
			CONSTRAINT inventory_warehouse_product_key UNIQUE (warehouse_id, product_id)
		)`,

		`CREATE TABLE IF NOT EXISTS inventory_transactions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			batch_id VARCHAR(64) CONSTRAINT inventory_transactions_batch_id_key UNIQUE,
			transaction_type VARCHAR(20) NOT NULL,
			warehouse_id UUID NOT NULL REFERENCES warehouses(id),
			account_id VARCHAR(64),
			source_doc VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT inventory_transactions_transaction_type_valid
				CHECK (transaction_type IN ('In', 'Out', 'Adjustment', 'Quote'))
		)`,

		`CREATE TABLE IF NOT EXISTS inventory_transaction_lines (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			transaction_id UUID NOT NULL REFERENCES inventory_transactions(id) ON DELETE CASCADE,
			product_id UUID NOT NULL REFERENCES products(id),
			inventory_id UUID NOT NULL REFERENCES inventory(id),
			quantity INT NOT NULL,
			previous_quantity INT NOT NULL,
			new_quantity INT NOT NULL,
			barcode VARCHAR(100)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_inventory_transaction_lines_transaction
			ON inventory_transaction_lines(transaction_id)`,
	}
}

// Migrate applies Schema to db
func Migrate(ctx context.Context, db *database.DB) error {
	for i, stmt := range Schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
