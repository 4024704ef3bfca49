package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/httputil"
	"github.com/stockscan/stockscan-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, r chi.Router) *InventoryClient {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewInventoryClient(srv.URL, 2*time.Second, logger.Nop())
}

func TestLookup(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/lookup", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4006381333931", r.URL.Query().Get("identifier"))
		assert.Equal(t, "WH1", r.URL.Query().Get("warehouse_id"))
		assert.Equal(t, "req-42", r.Header.Get("X-Request-ID"))
		httputil.JSON(w, http.StatusOK, domain.LookupResult{
			Product:   domain.Product{ID: "P1", Name: "Hex bolt", SKU: "HB-1"},
			Inventory: domain.InventorySnapshot{ID: "I1", WarehouseID: "WH1", CurrentQuantity: 12, PreviousQuantity: 4},
		})
	})
	c := newTestClient(t, r)
	ctx := httputil.WithRequestID(context.Background(), "req-42")

	res, err := c.Lookup(ctx, "4006381333931", "WH1")

	require.NoError(t, err)
	assert.Equal(t, "4006381333931", res.Identifier, "identifier defaults to the scan string")
	assert.Equal(t, "P1", res.Product.ID)
	assert.Equal(t, 12, res.Inventory.CurrentQuantity)
}

func TestLookup_NotFoundKeepsMessage(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/lookup", func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, errors.NotFoundMessage("no product matches UNKNOWN"))
	})
	c := newTestClient(t, r)

	_, err := c.Lookup(context.Background(), "UNKNOWN", "WH1")

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Equal(t, "no product matches UNKNOWN", appErr.Message)
}

func TestLookup_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewInventoryClient(srv.URL, time.Second, logger.Nop())

	_, err := c.Lookup(context.Background(), "X", "WH1")

	assert.True(t, errors.Is(err, errors.ErrLookupFailed))
	assert.Equal(t, "LOOKUP_FAILED", errors.Code(err))
}

func TestLookup_NonEnvelopeReply(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/lookup", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	})
	c := newTestClient(t, r)

	_, err := c.Lookup(context.Background(), "X", "WH1")

	assert.True(t, errors.Is(err, errors.ErrLookupFailed))
}

func TestCommitBatch(t *testing.T) {
	var got domain.Batch
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/transactions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		httputil.Created(w, domain.Ack{TransactionID: "TX-9"})
	})
	c := newTestClient(t, r)

	batch := domain.Batch{
		BatchID:         "b-1",
		WarehouseID:     "WH1",
		AccountID:       "ACC-1",
		TransactionType: domain.TransactionOut,
		Lines:           []domain.CommitLine{{ProductID: "P1", Quantity: 2, Barcode: "BC-P1"}},
	}
	ack, err := c.CommitBatch(context.Background(), batch)

	require.NoError(t, err)
	assert.Equal(t, "TX-9", ack.TransactionID)
	assert.Equal(t, batch, got)
}

func TestCommitBatch_BackendMessageVerbatim(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/transactions", func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, errors.New("STOCK_SHORTAGE", "Insufficient stock for HB-1", http.StatusUnprocessableEntity))
	})
	c := newTestClient(t, r)

	_, err := c.CommitBatch(context.Background(), domain.Batch{BatchID: "b-1"})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "COMMIT_FAILED", appErr.Code, "unknown codes map to the commit failure")
	assert.Equal(t, "Insufficient stock for HB-1", appErr.Message)
}

func TestCommitBatch_ConflictIsPreserved(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/transactions", func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, errors.Conflict("batch b-1 was already committed"))
	})
	c := newTestClient(t, r)

	_, err := c.CommitBatch(context.Background(), domain.Batch{BatchID: "b-1"})

	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestUpdateQuantity(t *testing.T) {
	var body updateStockRequest
	r := chi.NewRouter()
	r.Put("/api/v1/inventory/stock/{inventoryID}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "I-1", chi.URLParam(r, "inventoryID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		httputil.JSON(w, http.StatusOK, domain.Ack{TransactionID: "TX-2"})
	})
	c := newTestClient(t, r)

	ack, err := c.UpdateQuantity(context.Background(), "I-1", 25, "GRN-7")

	require.NoError(t, err)
	assert.Equal(t, "TX-2", ack.TransactionID)
	assert.Equal(t, updateStockRequest{Quantity: 25, SourceDoc: "GRN-7"}, body)
}

func TestCreateCatalogEntry(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/products", func(w http.ResponseWriter, r *http.Request) {
		var entry domain.CatalogEntry
		require.NoError(t, json.NewDecoder(r.Body).Decode(&entry))
		assert.Equal(t, "HB-M8", entry.SKU)
		httputil.Created(w, createdProduct{ProductID: "P-new", InventoryID: "I-new"})
	})
	c := newTestClient(t, r)

	id, err := c.CreateCatalogEntry(context.Background(), domain.CatalogEntry{SKU: "HB-M8", Name: "Hex bolt"})

	require.NoError(t, err)
	assert.Equal(t, "P-new", id)
}

func TestCreateCatalogEntry_ValidationDetails(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/products", func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, errors.Validation(map[string]string{"brand": "brand is required"}))
	})
	c := newTestClient(t, r)

	_, err := c.CreateCatalogEntry(context.Background(), domain.CatalogEntry{})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Equal(t, "brand is required", appErr.Details["brand"])
}

func TestListWarehouses(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/warehouses", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, []domain.Warehouse{{ID: "WH1", Name: "Main"}, {ID: "WH2", Name: "Yard"}})
	})
	c := newTestClient(t, r)

	got, err := c.ListWarehouses(context.Background())

	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Yard", got[1].Name)
}

func TestSearchProducts(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/products", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hex bolt", r.URL.Query().Get("q"))
		assert.Equal(t, "WH1", r.URL.Query().Get("warehouse_id"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		results := []domain.LookupResult{{
			Identifier: "HB-1",
			Product:    domain.Product{ID: "P1", Name: "Hex bolt", SKU: "HB-1"},
			Inventory:  domain.InventorySnapshot{ID: "I1", WarehouseID: "WH1", CurrentQuantity: 12},
		}}
		httputil.JSONWithMeta(w, http.StatusOK, results, &httputil.Meta{Total: 1})
	})
	c := newTestClient(t, r)

	got, err := c.SearchProducts(context.Background(), "hex bolt", "WH1", 5)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "P1", got[0].Product.ID)
	assert.Equal(t, "HB-1", got[0].Identifier)
}

func TestGetProduct_OutageIsLookupFailure(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/products/{productID}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "P 1", chi.URLParam(r, "productID"))
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, r)

	_, err := c.GetProduct(context.Background(), "P 1", "WH1")

	assert.True(t, errors.Is(err, errors.ErrLookupFailed))
}
