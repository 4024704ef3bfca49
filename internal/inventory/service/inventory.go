package service

import (
	"context"
	"strings"

	"github.com/stockscan/stockscan-backend/internal/inventory/repository"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

const (
	// DefaultSearchLimit caps keyword search results when no limit is given
	DefaultSearchLimit = 20
	// MaxSearchLimit is the largest accepted search limit
	MaxSearchLimit = 100
)

// Products resolves scans and lists stock locations
type Products interface {
	Lookup(ctx context.Context, identifier, warehouseID string) (*repository.LookupRow, error)
	GetByID(ctx context.Context, productID, warehouseID string) (*repository.LookupRow, error)
	Search(ctx context.Context, keyword, warehouseID string, limit int) ([]repository.LookupRow, error)
	ListWarehouses(ctx context.Context) ([]repository.Warehouse, error)
}

// Stock applies quantity changes
type Stock interface {
	ApplyBatch(ctx context.Context, batch repository.Batch) (*repository.Transaction, error)
	SetQuantity(ctx context.Context, inventoryID string, quantity int, sourceDoc string) (*repository.Transaction, error)
}

// Catalog creates catalog entries
type Catalog interface {
	CreateProduct(ctx context.Context, in repository.NewProduct) (*repository.Product, *repository.Inventory, error)
}

// Idempotency guards against replayed batch ids
type Idempotency interface {
	Claim(ctx context.Context, batchID string) (bool, error)
	Release(ctx context.Context, batchID string) error
}

// Events receives notifications about persisted changes
type Events interface {
	PublishTransactionCommitted(ctx context.Context, txn *repository.Transaction)
	PublishStockUpdated(ctx context.Context, txn *repository.Transaction)
	PublishProductCreated(ctx context.Context, product *repository.Product, inv *repository.Inventory, sourceDoc string)
}

// InventoryService handles inventory business logic
type InventoryService struct {
	products    Products
	stock       Stock
	catalog     Catalog
	idempotency Idempotency
	events      Events
	logger      *logger.Logger
}

// NewInventoryService creates a new inventory service. idempotency and events
// may be nil; replays are then caught by the batch_id unique constraint only.
func NewInventoryService(
	products Products,
	stock Stock,
	catalog Catalog,
	idempotency Idempotency,
	events Events,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		products:    products,
		stock:       stock,
		catalog:     catalog,
		idempotency: idempotency,
		events:      events,
		logger:      log,
	}
}

// ProductInfo is the product part of a lookup
type ProductInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SKU     string `json:"sku"`
	Barcode string `json:"barcode,omitempty"`
}

// StockInfo is the inventory part of a lookup
type StockInfo struct {
	ID               string `json:"id"`
	WarehouseID      string `json:"warehouse_id"`
	CurrentQuantity  int    `json:"current_quantity"`
	PreviousQuantity int    `json:"previous_quantity"`
	QtyPerPack       int    `json:"qty_per_pack"`
	TotalPacks       int    `json:"total_packs"`
}

// LookupResult answers a scan
type LookupResult struct {
	Identifier string      `json:"identifier"`
	Product    ProductInfo `json:"product"`
	Inventory  StockInfo   `json:"inventory"`
}

// Ack acknowledges a persisted change
type Ack struct {
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message,omitempty"`
}

// CreatedProduct identifies a new catalog entry
type CreatedProduct struct {
	ProductID   string `json:"product_id"`
	InventoryID string `json:"inventory_id"`
}

// Lookup resolves a barcode or SKU to a product and its stock in warehouseID
func (s *InventoryService) Lookup(ctx context.Context, identifier, warehouseID string) (*LookupResult, error) {
	if identifier == "" {
		return nil, errors.BadRequest("identifier is required")
	}
	if warehouseID == "" {
		return nil, errors.MissingSelection("warehouse_id is required")
	}

	row, err := s.products.Lookup(ctx, identifier, warehouseID)
	if err != nil {
		return nil, err
	}
	res := toLookupResult(row)
	res.Identifier = identifier
	return &res, nil
}

// GetProduct resolves a product picked from search results. The result's
// identifier is the product's barcode, or its SKU when it has none.
func (s *InventoryService) GetProduct(ctx context.Context, productID, warehouseID string) (*LookupResult, error) {
	if productID == "" {
		return nil, errors.BadRequest("product id is required")
	}
	if warehouseID == "" {
		return nil, errors.MissingSelection("warehouse_id is required")
	}

	row, err := s.products.GetByID(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	res := toLookupResult(row)
	return &res, nil
}

// SearchProducts finds products stocked in warehouseID whose name or SKU
// contains keyword. A blank keyword matches nothing.
func (s *InventoryService) SearchProducts(ctx context.Context, keyword, warehouseID string, limit int) ([]LookupResult, error) {
	keyword = strings.TrimSpace(keyword)
	if warehouseID == "" {
		return nil, errors.MissingSelection("warehouse_id is required")
	}
	if limit < 0 || limit > MaxSearchLimit {
		return nil, errors.BadRequest("limit must be between 1 and 100")
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	results := []LookupResult{}
	if keyword == "" {
		return results, nil
	}

	rows, err := s.products.Search(ctx, keyword, warehouseID, limit)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		results = append(results, toLookupResult(&rows[i]))
	}

	s.logger.Debug().Str("keyword", keyword).Int("matches", len(results)).Msg("product search")
	return results, nil
}

func toLookupResult(row *repository.LookupRow) LookupResult {
	identifier := row.Barcode
	if identifier == "" {
		identifier = row.SKU
	}
	return LookupResult{
		Identifier: identifier,
		Product: ProductInfo{
			ID:      row.ProductID,
			Name:    row.Name,
			SKU:     row.SKU,
			Barcode: row.Barcode,
		},
		Inventory: StockInfo{
			ID:               row.InventoryID,
			WarehouseID:      row.WarehouseID,
			CurrentQuantity:  row.CurrentQuantity,
			PreviousQuantity: row.PreviousQuantity,
			QtyPerPack:       row.QtyPerPack,
			TotalPacks:       row.TotalPacks,
		},
	}
}

// CommitBatch persists a batch once. A batch id that was already claimed is
// rejected with a conflict; a batch that fails to persist releases its claim.
func (s *InventoryService) CommitBatch(ctx context.Context, batch repository.Batch) (*Ack, error) {
	log := s.logger.WithWarehouse(batch.WarehouseID)

	claimed := false
	if s.idempotency != nil {
		ok, err := s.idempotency.Claim(ctx, batch.BatchID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("batch_id", batch.BatchID).Msg("idempotency check unavailable, relying on database")
		case !ok:
			return nil, errors.Conflict("batch " + batch.BatchID + " was already submitted")
		default:
			claimed = true
		}
	}

	txn, err := s.stock.ApplyBatch(ctx, batch)
	if err != nil {
		if claimed {
			if relErr := s.idempotency.Release(ctx, batch.BatchID); relErr != nil {
				log.Warn().Err(relErr).Str("batch_id", batch.BatchID).Msg("failed to release batch claim")
			}
		}
		return nil, err
	}

	log.Info().
		Str("batch_id", batch.BatchID).
		Str("transaction_id", txn.ID).
		Str("transaction_type", batch.TransactionType).
		Int("lines", len(txn.Lines)).
		Msg("batch committed")

	if s.events != nil {
		s.events.PublishTransactionCommitted(ctx, txn)
	}

	return &Ack{TransactionID: txn.ID, Message: "batch committed"}, nil
}

// UpdateStock sets one inventory row to an absolute quantity
func (s *InventoryService) UpdateStock(ctx context.Context, inventoryID string, quantity int, sourceDoc string) (*Ack, error) {
	txn, err := s.stock.SetQuantity(ctx, inventoryID, quantity, sourceDoc)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("inventory_id", inventoryID).Int("quantity", quantity).Msg("stock updated")
	if s.events != nil {
		s.events.PublishStockUpdated(ctx, txn)
	}

	return &Ack{TransactionID: txn.ID, Message: "stock updated"}, nil
}

// CreateProduct creates a catalog entry with its opening stock
func (s *InventoryService) CreateProduct(ctx context.Context, in repository.NewProduct) (*CreatedProduct, error) {
	product, inv, err := s.catalog.CreateProduct(ctx, in)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("product_id", product.ID).Str("sku", product.SKU).Msg("product created")
	if s.events != nil {
		s.events.PublishProductCreated(ctx, product, inv, in.SourceDoc)
	}

	return &CreatedProduct{ProductID: product.ID, InventoryID: inv.ID}, nil
}

// ListWarehouses returns the active warehouses
func (s *InventoryService) ListWarehouses(ctx context.Context) ([]repository.Warehouse, error) {
	return s.products.ListWarehouses(ctx)
}
