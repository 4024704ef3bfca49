package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stockscan/stockscan-backend/internal/inventory/repository"
	"github.com/stockscan/stockscan-backend/internal/inventory/service"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/httputil"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

const maxIdentifierLen = 200

// InventoryHandler handles lookup and stock movement endpoints
type InventoryHandler struct {
	service *service.InventoryService
	logger  *logger.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(svc *service.InventoryService, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  log,
	}
}

// Routes mounts the inventory API on r
func (h *InventoryHandler) Routes(r chi.Router) {
	r.Get("/lookup", h.Lookup)
	r.Post("/transactions", h.CommitBatch)
	r.Put("/stock/{inventoryID}", h.UpdateStock)
	r.Get("/products", h.SearchProducts)
	r.Post("/products", h.CreateProduct)
	r.Get("/products/{productID}", h.GetProduct)
	r.Get("/warehouses", h.ListWarehouses)
}

// Lookup resolves a barcode or SKU within a warehouse
func (h *InventoryHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if len(identifier) > maxIdentifierLen {
		httputil.Error(w, errors.BadRequest("identifier too long"))
		return
	}

	result, err := h.service.Lookup(r.Context(), identifier, r.URL.Query().Get("warehouse_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// SearchProducts finds products by name or SKU fragment (?q=) that are
// stocked in ?warehouse_id=.
func (h *InventoryHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	keyword := query.Get("q")
	if len(keyword) > maxIdentifierLen {
		httputil.Error(w, errors.BadRequest("search keyword too long"))
		return
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("limit must be a number"))
			return
		}
		limit = n
	}

	results, err := h.service.SearchProducts(r.Context(), keyword, query.Get("warehouse_id"), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, results, &httputil.Meta{Total: int64(len(results))})
}

// GetProduct resolves one product and its stock in ?warehouse_id=
func (h *InventoryHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "productID"), r.URL.Query().Get("warehouse_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// CommitBatch records a batch of quantity changes as one transaction
func (h *InventoryHandler) CommitBatch(w http.ResponseWriter, r *http.Request) {
	var batch repository.Batch
	if err := httputil.DecodeJSON(r, &batch); err != nil {
		httputil.Error(w, errors.BadRequest("invalid request body"))
		return
	}
	if len(batch.Lines) == 0 {
		httputil.Error(w, errors.EmptyBatch())
		return
	}
	if err := httputil.Validate(&batch); err != nil {
		httputil.Error(w, err)
		return
	}

	ack, err := h.service.CommitBatch(r.Context(), batch)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ack)
}

type updateStockRequest struct {
	Quantity  *int   `json:"quantity"`
	SourceDoc string `json:"source_doc"`
}

// UpdateStock sets one inventory row to an absolute quantity
func (h *InventoryHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req updateStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, errors.InvalidQuantity("quantity must be a non-negative integer"))
		return
	}
	if req.Quantity == nil {
		httputil.Error(w, errors.InvalidQuantity("quantity is required"))
		return
	}

	ack, err := h.service.UpdateStock(r.Context(), chi.URLParam(r, "inventoryID"), *req.Quantity, req.SourceDoc)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ack)
}

// CreateProduct creates a catalog entry with its opening stock
func (h *InventoryHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req repository.NewProduct
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, errors.BadRequest("invalid request body"))
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	created, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, created)
}

// ListWarehouses returns the active warehouses
func (h *InventoryHandler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, warehouses, &httputil.Meta{Total: int64(len(warehouses))})
}
