package events

import (
	"context"

	"github.com/stockscan/stockscan-backend/internal/inventory/repository"
	"github.com/stockscan/stockscan-backend/pkg/httputil"
	"github.com/stockscan/stockscan-backend/pkg/logger"
	"github.com/stockscan/stockscan-backend/pkg/messaging"
)

// Publisher is the part of messaging.Publisher the inventory events need
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// InventoryEventPublisher publishes inventory-related events. Publishing is
// best effort: failures are logged and never fail the calling operation.
type InventoryEventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a publisher on the inventory exchange
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing publisher
func NewWithPublisher(publisher Publisher, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{publisher: publisher, logger: log}
}

// PublishTransactionCommitted publishes a committed batch
func (p *InventoryEventPublisher) PublishTransactionCommitted(ctx context.Context, txn *repository.Transaction) {
	if p == nil {
		return
	}

	data := messaging.TransactionCommittedEvent{
		TransactionID:   txn.ID,
		BatchID:         deref(txn.BatchID),
		TransactionType: txn.TransactionType,
		WarehouseID:     txn.WarehouseID,
		AccountID:       deref(txn.AccountID),
		Lines:           make([]messaging.TransactionLine, 0, len(txn.Lines)),
	}
	for _, line := range txn.Lines {
		data.Lines = append(data.Lines, messaging.TransactionLine{
			ProductID:   line.ProductID,
			InventoryID: line.InventoryID,
			Quantity:    line.Quantity,
			NewQuantity: line.NewQuantity,
		})
	}

	if err := p.publish(ctx, messaging.EventTransactionCommitted, data); err != nil {
		p.logger.Error().Err(err).Str("transaction_id", txn.ID).Msg("failed to publish transaction committed event")
	}
}

// PublishStockUpdated publishes an in-place quantity change
func (p *InventoryEventPublisher) PublishStockUpdated(ctx context.Context, txn *repository.Transaction) {
	if p == nil || len(txn.Lines) == 0 {
		return
	}
	line := txn.Lines[0]

	data := messaging.StockUpdatedEvent{
		InventoryID:      line.InventoryID,
		ProductID:        line.ProductID,
		WarehouseID:      txn.WarehouseID,
		PreviousQuantity: line.PreviousQuantity,
		NewQuantity:      line.NewQuantity,
		SourceDoc:        deref(txn.SourceDoc),
	}

	if err := p.publish(ctx, messaging.EventStockUpdated, data); err != nil {
		p.logger.Error().Err(err).Str("inventory_id", line.InventoryID).Msg("failed to publish stock updated event")
	}
}

// PublishProductCreated publishes a new catalog entry
func (p *InventoryEventPublisher) PublishProductCreated(ctx context.Context, product *repository.Product, inv *repository.Inventory, sourceDoc string) {
	if p == nil {
		return
	}

	data := messaging.ProductCreatedEvent{
		ProductID:   product.ID,
		InventoryID: inv.ID,
		SKU:         product.SKU,
		Barcode:     deref(product.Barcode),
		Name:        product.Name,
		WarehouseID: inv.WarehouseID,
		OpeningQty:  inv.CurrentQuantity,
		SourceDoc:   sourceDoc,
	}

	if err := p.publish(ctx, messaging.EventProductCreated, data); err != nil {
		p.logger.Error().Err(err).Str("product_id", product.ID).Msg("failed to publish product created event")
	}
}

// publish correlates the event with the request that caused it
func (p *InventoryEventPublisher) publish(ctx context.Context, eventType string, data interface{}) error {
	if id := httputil.GetRequestID(ctx); id != "" {
		ctx = messaging.WithCorrelationID(ctx, id)
	}
	return p.publisher.Publish(ctx, eventType, data)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
