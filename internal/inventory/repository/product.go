package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stockscan/stockscan-backend/pkg/database"
	"github.com/stockscan/stockscan-backend/pkg/errors"
)

const lookupQuery = `
	SELECT p.id AS product_id, p.name, p.sku, COALESCE(p.barcode, '') AS barcode,
	       i.id AS inventory_id, i.warehouse_id, i.current_quantity, i.previous_quantity,
	       i.qty_per_pack,
	       CASE WHEN i.qty_per_pack > 0 THEN i.current_quantity / i.qty_per_pack ELSE 0 END AS total_packs
	FROM products p
	JOIN inventory i ON i.product_id = p.id AND i.warehouse_id = $2
	WHERE `

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ProductRepository resolves scans to products and their stock
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Lookup matches identifier against product barcodes first and SKUs second,
// scoped to the stock of one warehouse.
func (r *ProductRepository) Lookup(ctx context.Context, identifier, warehouseID string) (*LookupRow, error) {
	row, err := r.lookupBy(ctx, "p.barcode = $1", identifier, warehouseID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	return r.lookupBy(ctx, "p.sku = $1", identifier, warehouseID)
}

func (r *ProductRepository) lookupBy(ctx context.Context, where, identifier, warehouseID string) (*LookupRow, error) {
	var row LookupRow
	err := r.db.GetContext(ctx, &row, lookupQuery+where, identifier, warehouseID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundMessage("no inventory found for " + identifier)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID resolves a product picked from search results, scoped to the stock
// of one warehouse. An id that is not a UUID matches nothing.
func (r *ProductRepository) GetByID(ctx context.Context, productID, warehouseID string) (*LookupRow, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return nil, errors.NotFound("product")
	}
	return r.lookupBy(ctx, "p.id = $1", productID, warehouseID)
}

// Search matches keyword case-insensitively anywhere in product names and
// SKUs. Only products stocked in warehouseID are returned, ordered by name.
func (r *ProductRepository) Search(ctx context.Context, keyword, warehouseID string, limit int) ([]LookupRow, error) {
	rows := []LookupRow{}
	pattern := "%" + likeEscaper.Replace(keyword) + "%"
	query := lookupQuery + `(p.name ILIKE $1 OR p.sku ILIKE $1) ORDER BY p.name, p.sku LIMIT $3`
	if err := r.db.SelectContext(ctx, &rows, query, pattern, warehouseID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetInventory returns one stock record
func (r *ProductRepository) GetInventory(ctx context.Context, inventoryID string) (*Inventory, error) {
	var inv Inventory
	query := `
		SELECT id, product_id, warehouse_id, current_quantity, previous_quantity, qty_per_pack, updated_at
		FROM inventory WHERE id = $1
	`
	err := r.db.GetContext(ctx, &inv, query, inventoryID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("inventory record")
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListWarehouses returns active warehouses ordered by name
func (r *ProductRepository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	warehouses := []Warehouse{}
	query := `SELECT id, name FROM warehouses WHERE is_active = TRUE ORDER BY name`
	if err := r.db.SelectContext(ctx, &warehouses, query); err != nil {
		return nil, err
	}
	return warehouses, nil
}
