package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types accepted by ApplyBatch
const (
	TransactionIn         = "In"
	TransactionOut        = "Out"
	TransactionAdjustment = "Adjustment"
	TransactionQuote      = "Quote"
)

// Product is a catalog entry
type Product struct {
	ID        string          `db:"id" json:"id"`
	SKU       string          `db:"sku" json:"sku"`
	Barcode   *string         `db:"barcode" json:"barcode,omitempty"`
	Name      string          `db:"name" json:"name"`
	Brand     string          `db:"brand" json:"brand"`
	Category  string          `db:"category" json:"category"`
	UOM       string          `db:"uom" json:"uom"`
	Size      string          `db:"size" json:"size"`
	Supplier  string          `db:"supplier" json:"supplier"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Inventory is the stock record of one product in one warehouse
type Inventory struct {
	ID               string    `db:"id" json:"id"`
	ProductID        string    `db:"product_id" json:"product_id"`
	WarehouseID      string    `db:"warehouse_id" json:"warehouse_id"`
	CurrentQuantity  int       `db:"current_quantity" json:"current_quantity"`
	PreviousQuantity int       `db:"previous_quantity" json:"previous_quantity"`
	QtyPerPack       int       `db:"qty_per_pack" json:"qty_per_pack"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// LookupRow is a product joined with its stock in the requested warehouse
type LookupRow struct {
	ProductID        string `db:"product_id"`
	Name             string `db:"name"`
	SKU              string `db:"sku"`
	Barcode          string `db:"barcode"`
	InventoryID      string `db:"inventory_id"`
	WarehouseID      string `db:"warehouse_id"`
	CurrentQuantity  int    `db:"current_quantity"`
	PreviousQuantity int    `db:"previous_quantity"`
	QtyPerPack       int    `db:"qty_per_pack"`
	TotalPacks       int    `db:"total_packs"`
}

// Warehouse is a stock location
type Warehouse struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// BatchLine is one product quantity of a batch
type BatchLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Barcode   string `json:"barcode"`
}

// Batch is a set of quantity changes committed as one transaction
type Batch struct {
	BatchID         string      `json:"batch_id" validate:"required"`
	WarehouseID     string      `json:"warehouse_id" validate:"required"`
	AccountID       string      `json:"account_id"`
	TransactionType string      `json:"transaction_type" validate:"required,oneof=In Out Adjustment Quote"`
	SourceDoc       string      `json:"source_doc,omitempty"`
	Lines           []BatchLine `json:"lines" validate:"required,min=1,dive"`
}

// Transaction is a committed batch header
type Transaction struct {
	ID              string            `db:"id" json:"id"`
	BatchID         *string           `db:"batch_id" json:"batch_id,omitempty"`
	TransactionType string            `db:"transaction_type" json:"transaction_type"`
	WarehouseID     string            `db:"warehouse_id" json:"warehouse_id"`
	AccountID       *string           `db:"account_id" json:"account_id,omitempty"`
	SourceDoc       *string           `db:"source_doc" json:"source_doc,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	Lines           []TransactionLine `db:"-" json:"lines"`
}

// TransactionLine records the stock movement of one product
type TransactionLine struct {
	ID               string  `db:"id" json:"id"`
	TransactionID    string  `db:"transaction_id" json:"transaction_id"`
	ProductID        string  `db:"product_id" json:"product_id"`
	InventoryID      string  `db:"inventory_id" json:"inventory_id"`
	Quantity         int     `db:"quantity" json:"quantity"`
	PreviousQuantity int     `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int     `db:"new_quantity" json:"new_quantity"`
	Barcode          *string `db:"barcode" json:"barcode,omitempty"`
}

// NewProduct is the input of CatalogRepository.CreateProduct
type NewProduct struct {
	Name            string          `json:"name" validate:"required"`
	Brand           string          `json:"brand" validate:"required"`
	Category        string          `json:"category" validate:"required"`
	UOM             string          `json:"uom" validate:"required"`
	Size            string          `json:"size" validate:"required"`
	Supplier        string          `json:"supplier" validate:"required"`
	WarehouseID     string          `json:"warehouse_id" validate:"required"`
	SKU             string          `json:"sku" validate:"required,max=100"`
	Barcode         string          `json:"barcode" validate:"max=100"`
	QtyPerPack      int             `json:"qty_per_pack" validate:"gte=0"`
	OpeningQuantity int             `json:"opening_quantity" validate:"gte=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	SourceDoc       string          `json:"source_doc,omitempty"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
