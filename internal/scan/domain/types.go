// Package domain holds the types shared by the scan engine, its collaborators
// and the HTTP surface.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects the merge semantics of a session.
type Mode string

const (
	// ModeIncrement adds one to a row's quantity per repeated scan (ordering).
	ModeIncrement Mode = "increment"
	// ModeAbsolute treats quantity as the target stock level (stock correction).
	ModeAbsolute Mode = "absolute"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIncrement, ModeAbsolute:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Product is the catalog part of a lookup result
type Product struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SKU     string `json:"sku"`
	Barcode string `json:"barcode,omitempty"`
}

// InventorySnapshot is the warehouse-scoped stock record of a lookup result
type InventorySnapshot struct {
	ID               string `json:"id"`
	WarehouseID      string `json:"warehouse_id"`
	CurrentQuantity  int    `json:"current_quantity"`
	PreviousQuantity int    `json:"previous_quantity"`
	QtyPerPack       int    `json:"qty_per_pack"`
	TotalPacks       int    `json:"total_packs"`
}

// LookupResult is what the lookup collaborator returns for an identifier.
// Identifier is the raw scan string that produced it.
type LookupResult struct {
	Identifier string            `json:"identifier"`
	Product    Product           `json:"product"`
	Inventory  InventorySnapshot `json:"inventory"`
}

// LineItem is one product's row in a session store
type LineItem struct {
	ID               int64  `json:"id"`
	ProductID        string `json:"product_id"`
	InventoryID      string `json:"inventory_id,omitempty"`
	WarehouseID      string `json:"warehouse_id,omitempty"`
	SKU              string `json:"sku"`
	ProductName      string `json:"product_name"`
	CurrentStock     int    `json:"current_stock"`
	PreviousQuantity int    `json:"previous_quantity"`
	QtyPerPack       int    `json:"qty_per_pack"`
	TotalPacks       int    `json:"total_packs"`
	Quantity         int    `json:"quantity"`
	Barcode          string `json:"barcode"`
}

// FieldQuantity is the only line field a draft edit may change.
const FieldQuantity = "quantity"

// Edit is a draft modification of one line field
type Edit struct {
	LineID int64  `json:"line_id" validate:"required"`
	Field  string `json:"field" validate:"required"`
	Value  any    `json:"value"`
}

// EditRejection reports an edit that was not applied
type EditRejection struct {
	LineID  int64  `json:"line_id"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TransactionType is the backend transaction a batch is recorded as
type TransactionType string

const (
	TransactionIn         TransactionType = "In"
	TransactionOut        TransactionType = "Out"
	TransactionAdjustment TransactionType = "Adjustment"
	TransactionQuote      TransactionType = "Quote"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionIn, TransactionOut, TransactionAdjustment, TransactionQuote:
		return true
	}
	return false
}

// CommitKind names the workflow a commit belongs to
type CommitKind string

const (
	CommitOrder           CommitKind = "order"
	CommitQuote           CommitKind = "quote"
	CommitTransaction     CommitKind = "transaction"
	CommitStockCorrection CommitKind = "stock_correction"
)

// RequiresAccount reports whether commits of this kind need an account
func (k CommitKind) RequiresAccount() bool {
	return k == CommitOrder || k == CommitQuote
}

// DefaultTransactionType is used when the commit context does not name one
func (k CommitKind) DefaultTransactionType() TransactionType {
	switch k {
	case CommitOrder:
		return TransactionOut
	case CommitQuote:
		return TransactionQuote
	case CommitStockCorrection:
		return TransactionAdjustment
	default:
		return TransactionIn
	}
}

// CommitContext carries the selections a commit needs
type CommitContext struct {
	Kind            CommitKind      `json:"kind"`
	WarehouseID     string          `json:"warehouse_id"`
	AccountID       string          `json:"account_id,omitempty"`
	TransactionType TransactionType `json:"transaction_type,omitempty"`
}

// CommitLine is one payload tuple of a batch
type CommitLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Barcode   string `json:"barcode"`
}

// Batch is the payload sent to the commit collaborator
type Batch struct {
	BatchID         string          `json:"batch_id"`
	Lines           []CommitLine    `json:"lines"`
	WarehouseID     string          `json:"warehouse_id"`
	AccountID       string          `json:"account_id,omitempty"`
	TransactionType TransactionType `json:"transaction_type"`
}

// Ack is a collaborator acknowledgement
type Ack struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

// CommitOutcome describes a successful commit
type CommitOutcome struct {
	BatchID       string           `json:"batch_id"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Committed     int              `json:"committed"`
	Cleared       bool             `json:"cleared"`
	Refreshed     []LineItem       `json:"refreshed,omitempty"`
	RefreshErrors map[int64]string `json:"refresh_errors,omitempty"`
}

// StockUpdateOutcome is the result of an in-place stock update. The update
// itself succeeded; RefreshError is set when the row could not be re-read
// afterwards and Line still shows the stock from before the update.
type StockUpdateOutcome struct {
	Line         LineItem `json:"line"`
	Refreshed    bool     `json:"refreshed"`
	RefreshError string   `json:"refresh_error,omitempty"`
}

// CatalogEntry is the input of the product creation path
type CatalogEntry struct {
	Name            string          `json:"name" validate:"required"`
	Brand           string          `json:"brand" validate:"required"`
	Category        string          `json:"category" validate:"required"`
	UOM             string          `json:"uom" validate:"required"`
	Size            string          `json:"size" validate:"required"`
	Supplier        string          `json:"supplier" validate:"required"`
	WarehouseID     string          `json:"warehouse_id" validate:"required"`
	SKU             string          `json:"sku" validate:"required"`
	Barcode         string          `json:"barcode,omitempty"`
	QtyPerPack      int             `json:"qty_per_pack" validate:"gte=0"`
	OpeningQuantity int             `json:"opening_quantity" validate:"gte=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	SourceDoc       string          `json:"source_doc,omitempty"`
}

// Warehouse is a selectable stock location
type Warehouse struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// State is the workflow state of a session
type State string

const (
	StateIdle        State = "idle"
	StateSearching   State = "searching"
	StateFound       State = "found"
	StateNotFound    State = "not_found"
	StateSearchError State = "search_error"
	StateEditing     State = "editing"
	StateSubmitting  State = "submitting"
)

// SessionInfo is the externally visible summary of a scan session
type SessionInfo struct {
	ID          string     `json:"id"`
	Mode        Mode       `json:"mode"`
	Kind        CommitKind `json:"kind"`
	WarehouseID string     `json:"warehouse_id"`
	AccountID   string     `json:"account_id,omitempty"`
	State       State      `json:"state"`
	Version     uint64     `json:"version"`
	Lines       []LineItem `json:"lines"`
	CreatedAt   time.Time  `json:"created_at"`
	LastActive  time.Time  `json:"last_active"`
}
