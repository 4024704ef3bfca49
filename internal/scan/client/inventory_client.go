// Package client talks to the inventory service on behalf of scan sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/httputil"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

const apiPrefix = "/api/v1/inventory"

// InventoryClient implements the session collaborators over the inventory
// service HTTP API.
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewInventoryClient creates a client. A zero timeout falls back to 10 seconds.
func NewInventoryClient(baseURL string, timeout time.Duration, log *logger.Logger) *InventoryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InventoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithComponent("inventory-client"),
	}
}

// envelope is httputil.Response with a typed data field
type envelope[T any] struct {
	Success bool                `json:"success"`
	Data    T                   `json:"data"`
	Error   *httputil.ErrorBody `json:"error"`
}

type failure func(message string) *errors.AppError

func lookupFailure(message string) *errors.AppError { return errors.LookupFailed(message, nil) }
func commitFailure(message string) *errors.AppError { return errors.CommitFailed(message, nil) }

// do sends one request and decodes the success envelope into out. Transport
// errors and undecodable replies become fail with a generic message; error
// envelopes keep the backend's code and message.
func do[T any](ctx context.Context, c *InventoryClient, method, path string, body any, fail failure) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	log := c.logger
	if id := httputil.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
		log = log.WithRequestID(id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("path", path).Msg("inventory service request failed")
		e := fail("")
		e.Err = fmt.Errorf("%w: %w", e.Err, err)
		return zero, e
	}
	defer resp.Body.Close()

	var env envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		log.Error().Err(err).Int("status", resp.StatusCode).Str("path", path).Msg("undecodable inventory service response")
		return zero, fail("")
	}

	if resp.StatusCode >= 300 || !env.Success {
		if env.Error == nil {
			return zero, fail("")
		}
		log.Debug().
			Int("status", resp.StatusCode).
			Str("code", env.Error.Code).
			Str("path", path).
			Msg("inventory service returned an error")
		appErr := errors.FromCode(env.Error.Code, env.Error.Message, fail)
		if len(env.Error.Details) > 0 {
			appErr = appErr.WithDetails(env.Error.Details)
		}
		return zero, appErr
	}

	return env.Data, nil
}

// Lookup resolves a barcode or SKU in a warehouse
func (c *InventoryClient) Lookup(ctx context.Context, identifier, warehouseID string) (*domain.LookupResult, error) {
	q := url.Values{}
	q.Set("identifier", identifier)
	q.Set("warehouse_id", warehouseID)

	res, err := do[domain.LookupResult](ctx, c, http.MethodGet, apiPrefix+"/lookup?"+q.Encode(), nil, lookupFailure)
	if err != nil {
		return nil, err
	}
	if res.Identifier == "" {
		res.Identifier = identifier
	}
	return &res, nil
}

// SearchProducts lists products stocked in warehouseID whose name or SKU
// contains keyword. A zero limit leaves the page size to the service.
func (c *InventoryClient) SearchProducts(ctx context.Context, keyword, warehouseID string, limit int) ([]domain.LookupResult, error) {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("warehouse_id", warehouseID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return do[[]domain.LookupResult](ctx, c, http.MethodGet, apiPrefix+"/products?"+q.Encode(), nil, lookupFailure)
}

// GetProduct resolves a product picked from search results
func (c *InventoryClient) GetProduct(ctx context.Context, productID, warehouseID string) (*domain.LookupResult, error) {
	q := url.Values{}
	q.Set("warehouse_id", warehouseID)

	path := apiPrefix + "/products/" + url.PathEscape(productID) + "?" + q.Encode()
	res, err := do[domain.LookupResult](ctx, c, http.MethodGet, path, nil, lookupFailure)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CommitBatch posts a batch as one transaction
func (c *InventoryClient) CommitBatch(ctx context.Context, batch domain.Batch) (*domain.Ack, error) {
	c.logger.Info().
		Str("batch_id", batch.BatchID).
		Int("lines", len(batch.Lines)).
		Str("transaction_type", string(batch.TransactionType)).
		Msg("committing batch to inventory service")

	ack, err := do[domain.Ack](ctx, c, http.MethodPost, apiPrefix+"/transactions", batch, commitFailure)
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

type updateStockRequest struct {
	Quantity  int    `json:"quantity"`
	SourceDoc string `json:"source_doc,omitempty"`
}

// UpdateQuantity sets one inventory row to an absolute quantity
func (c *InventoryClient) UpdateQuantity(ctx context.Context, inventoryID string, newQuantity int, sourceDoc string) (*domain.Ack, error) {
	path := apiPrefix + "/stock/" + url.PathEscape(inventoryID)
	ack, err := do[domain.Ack](ctx, c, http.MethodPut, path, updateStockRequest{Quantity: newQuantity, SourceDoc: sourceDoc}, commitFailure)
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

type createdProduct struct {
	ProductID   string `json:"product_id"`
	InventoryID string `json:"inventory_id"`
}

// CreateCatalogEntry creates a product with its opening stock
func (c *InventoryClient) CreateCatalogEntry(ctx context.Context, entry domain.CatalogEntry) (string, error) {
	created, err := do[createdProduct](ctx, c, http.MethodPost, apiPrefix+"/products", entry, commitFailure)
	if err != nil {
		return "", err
	}
	c.logger.Info().Str("product_id", created.ProductID).Str("sku", entry.SKU).Msg("catalog entry created")
	return created.ProductID, nil
}

// ListWarehouses returns the selectable warehouses
func (c *InventoryClient) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	return do[[]domain.Warehouse](ctx, c, http.MethodGet, apiPrefix+"/warehouses", nil, lookupFailure)
}
