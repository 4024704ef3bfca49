package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTransactionCommitted = "inventory.transaction.committed"
	EventStockUpdated         = "inventory.stock.updated"
	EventProductCreated       = "inventory.product.created"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Inventory Events

// TransactionLine is one product line of a committed transaction
type TransactionLine struct {
	ProductID   string `json:"product_id"`
	InventoryID string `json:"inventory_id"`
	Quantity    int    `json:"quantity"`
	NewQuantity int    `json:"new_quantity"`
}

// TransactionCommittedEvent is published after a batch transaction is persisted
type TransactionCommittedEvent struct {
	TransactionID   string            `json:"transaction_id"`
	BatchID         string            `json:"batch_id"`
	TransactionType string            `json:"transaction_type"`
	WarehouseID     string            `json:"warehouse_id"`
	AccountID       string            `json:"account_id,omitempty"`
	Lines           []TransactionLine `json:"lines"`
}

// StockUpdatedEvent is published when a single inventory row is set in place
type StockUpdatedEvent struct {
	InventoryID      string `json:"inventory_id"`
	ProductID        string `json:"product_id"`
	WarehouseID      string `json:"warehouse_id"`
	PreviousQuantity int    `json:"previous_quantity"`
	NewQuantity      int    `json:"new_quantity"`
	SourceDoc        string `json:"source_doc,omitempty"`
}

// ProductCreatedEvent is published when a catalog entry is created
type ProductCreatedEvent struct {
	ProductID   string `json:"product_id"`
	InventoryID string `json:"inventory_id"`
	SKU         string `json:"sku"`
	Barcode     string `json:"barcode,omitempty"`
	Name        string `json:"name"`
	WarehouseID string `json:"warehouse_id"`
	OpeningQty  int    `json:"opening_quantity"`
	SourceDoc   string `json:"source_doc,omitempty"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
