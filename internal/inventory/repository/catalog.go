package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockscan/stockscan-backend/pkg/database"
)

// CatalogRepository creates catalog entries
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// CreateProduct inserts the product and its opening stock in the given
// warehouse. A qty_per_pack of zero is stored as 1.
func (r *CatalogRepository) CreateProduct(ctx context.Context, in NewProduct) (*Product, *Inventory, error) {
	product := &Product{
		ID:        uuid.New().String(),
		SKU:       in.SKU,
		Barcode:   nullable(in.Barcode),
		Name:      in.Name,
		Brand:     in.Brand,
		Category:  in.Category,
		UOM:       in.UOM,
		Size:      in.Size,
		Supplier:  in.Supplier,
		UnitPrice: in.UnitPrice,
	}
	inv := &Inventory{
		ID:              uuid.New().String(),
		ProductID:       product.ID,
		WarehouseID:     in.WarehouseID,
		CurrentQuantity: in.OpeningQuantity,
		QtyPerPack:      in.QtyPerPack,
	}
	if inv.QtyPerPack == 0 {
		inv.QtyPerPack = 1
	}

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO products (id, sku, barcode, name, brand, category, uom, size, supplier, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			product.ID, product.SKU, product.Barcode, product.Name, product.Brand, product.Category,
			product.UOM, product.Size, product.Supplier, product.UnitPrice,
		).Scan(&product.CreatedAt); err != nil {
			return err
		}

		query = `
			INSERT INTO inventory (id, product_id, warehouse_id, current_quantity, previous_quantity, qty_per_pack)
			VALUES ($1, $2, $3, $4, 0, $5)
			RETURNING updated_at
		`
		return tx.QueryRowxContext(ctx, query,
			inv.ID, inv.ProductID, inv.WarehouseID, inv.CurrentQuantity, inv.QtyPerPack,
		).Scan(&inv.UpdatedAt)
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, nil, appErr
		}
		return nil, nil, err
	}

	return product, inv, nil
}
