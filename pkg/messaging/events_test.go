package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_RoundTripsData(t *testing.T) {
	in := StockUpdatedEvent{InventoryID: "inv-1", PreviousQuantity: 4, NewQuantity: 9, SourceDoc: "GRN-3"}

	evt, err := NewEvent(EventStockUpdated, "inventory-service", "req-1", in)
	require.NoError(t, err)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, EventStockUpdated, evt.Type)
	assert.Equal(t, "req-1", evt.CorrelationID)

	var out StockUpdatedEvent
	require.NoError(t, evt.UnmarshalData(&out))
	assert.Equal(t, in, out)
}

func TestCorrelationID(t *testing.T) {
	assert.Empty(t, getCorrelationID(context.Background()))

	ctx := WithCorrelationID(context.Background(), "req-9")
	assert.Equal(t, "req-9", getCorrelationID(ctx))
}
