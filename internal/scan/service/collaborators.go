package service

import (
	"context"

	"github.com/stockscan/stockscan-backend/internal/scan/domain"
)

// Lookuper resolves a barcode or SKU to a product and its warehouse stock.
// A miss is reported as a NOT_FOUND AppError.
type Lookuper interface {
	Lookup(ctx context.Context, identifier, warehouseID string) (*domain.LookupResult, error)
}

// ProductFinder searches the catalog by keyword and resolves a picked result
// by product ID. Both are scoped to one warehouse's stock.
type ProductFinder interface {
	SearchProducts(ctx context.Context, keyword, warehouseID string, limit int) ([]domain.LookupResult, error)
	GetProduct(ctx context.Context, productID, warehouseID string) (*domain.LookupResult, error)
}

// Committer persists a batch of quantity changes as one transaction
type Committer interface {
	CommitBatch(ctx context.Context, batch domain.Batch) (*domain.Ack, error)
}

// StockUpdater sets a single inventory row to an absolute quantity
type StockUpdater interface {
	UpdateQuantity(ctx context.Context, inventoryID string, newQuantity int, sourceDoc string) (*domain.Ack, error)
}

// Cataloger creates new catalog entries and returns the product ID
type Cataloger interface {
	CreateCatalogEntry(ctx context.Context, entry domain.CatalogEntry) (string, error)
}

// WarehouseLister lists the selectable warehouses
type WarehouseLister interface {
	ListWarehouses(ctx context.Context) ([]domain.Warehouse, error)
}

// Refresher re-resolves one row from the lookup collaborator
type Refresher interface {
	RefreshAfterCommit(ctx context.Context, lineID int64) (domain.LineItem, error)
}

// Backend is everything a session needs from the inventory service
type Backend interface {
	Lookuper
	ProductFinder
	Committer
	StockUpdater
	Cataloger
	WarehouseLister
}
