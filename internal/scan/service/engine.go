package service

import (
	"context"
	"strings"
	"sync"

	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/internal/scan/store"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/httputil"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

// Engine drives one scan session: lookups are merged into the session's store,
// rows are refreshed from the backend after commits, and the workflow state is
// tracked for the front-end.
type Engine struct {
	store   *store.Store
	lookup  Lookuper
	finder  ProductFinder
	stock   StockUpdater
	catalog Cataloger
	logger  *logger.Logger

	mu    sync.Mutex
	state domain.State
}

// NewEngine creates an engine over st. Collaborators other than lookup may be
// nil; operations that need a missing one fail with BAD_REQUEST.
func NewEngine(st *store.Store, lookup Lookuper, finder ProductFinder, stock StockUpdater, catalog Cataloger, log *logger.Logger) *Engine {
	return &Engine{
		store:   st,
		lookup:  lookup,
		finder:  finder,
		stock:   stock,
		catalog: catalog,
		logger:  log,
		state:   domain.StateIdle,
	}
}

// Store returns the session store
func (e *Engine) Store() *store.Store {
	return e.store
}

// State returns the current workflow state
func (e *Engine) State() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) transition(to domain.State) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.mu.Unlock()

	if from != to {
		e.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("session state changed")
	}
}

// LookupAndMerge resolves a scan and merges it into the store. Missing input
// fails before any remote call. A miss returns NOT_FOUND and leaves the store
// alone. Overlapping calls are not coalesced: each one applies its result when
// it completes.
func (e *Engine) LookupAndMerge(ctx context.Context, barcode, warehouseID string) (domain.LineItem, error) {
	barcode = strings.TrimSpace(barcode)
	warehouseID = strings.TrimSpace(warehouseID)
	if barcode == "" {
		return domain.LineItem{}, errors.MissingSelection("scan or type a barcode or SKU")
	}
	if warehouseID == "" {
		return domain.LineItem{}, errors.MissingSelection("select a warehouse")
	}

	e.transition(domain.StateSearching)

	result, err := e.lookup.Lookup(ctx, barcode, warehouseID)
	if err != nil {
		return domain.LineItem{}, e.lookupFailed(barcode, err)
	}
	if result == nil || result.Product.ID == "" {
		e.transition(domain.StateNotFound)
		return domain.LineItem{}, errors.NotFoundMessage("no product matches " + barcode)
	}

	result.Identifier = barcode
	if result.Inventory.WarehouseID == "" {
		result.Inventory.WarehouseID = warehouseID
	}

	row := e.store.Merge(*result)
	e.transition(domain.StateFound)

	e.logger.Debug().
		Str("barcode", barcode).
		Str("product_id", row.ProductID).
		Int64("line_id", row.ID).
		Int("quantity", row.Quantity).
		Msg("lookup merged")

	return row, nil
}

// SearchProducts lists catalog matches for a keyword in warehouseID. A blank
// keyword returns no matches without a remote call. The store and the
// workflow state are not touched.
func (e *Engine) SearchProducts(ctx context.Context, keyword, warehouseID string, limit int) ([]domain.LookupResult, error) {
	if e.finder == nil {
		return nil, errors.BadRequest("product search is not available for this session")
	}
	keyword = strings.TrimSpace(keyword)
	warehouseID = strings.TrimSpace(warehouseID)
	if warehouseID == "" {
		return nil, errors.MissingSelection("select a warehouse")
	}
	if keyword == "" {
		return []domain.LookupResult{}, nil
	}

	results, err := e.finder.SearchProducts(ctx, keyword, warehouseID, limit)
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.LookupFailed("", err)
	}
	if results == nil {
		results = []domain.LookupResult{}
	}
	return results, nil
}

// AddProduct merges a product picked from search results, the same way a
// scan of it would. The row's barcode is the product's barcode, or its SKU
// when it has none.
func (e *Engine) AddProduct(ctx context.Context, productID, warehouseID string) (domain.LineItem, error) {
	if e.finder == nil {
		return domain.LineItem{}, errors.BadRequest("product search is not available for this session")
	}
	productID = strings.TrimSpace(productID)
	warehouseID = strings.TrimSpace(warehouseID)
	if productID == "" {
		return domain.LineItem{}, errors.MissingSelection("pick a product")
	}
	if warehouseID == "" {
		return domain.LineItem{}, errors.MissingSelection("select a warehouse")
	}

	e.transition(domain.StateSearching)

	result, err := e.finder.GetProduct(ctx, productID, warehouseID)
	if err != nil {
		return domain.LineItem{}, e.lookupFailed(productID, err)
	}
	if result == nil || result.Product.ID != productID {
		e.transition(domain.StateNotFound)
		return domain.LineItem{}, errors.NotFoundMessage("product " + productID + " is not stocked here")
	}

	result.Identifier = result.Product.Barcode
	if result.Identifier == "" {
		result.Identifier = result.Product.SKU
	}
	if result.Inventory.WarehouseID == "" {
		result.Inventory.WarehouseID = warehouseID
	}

	row := e.store.Merge(*result)
	e.transition(domain.StateFound)

	e.logger.Debug().
		Str("product_id", row.ProductID).
		Int64("line_id", row.ID).
		Int("quantity", row.Quantity).
		Msg("search pick merged")

	return row, nil
}

func (e *Engine) lookupFailed(identifier string, err error) error {
	if errors.Is(err, errors.ErrNotFound) {
		e.transition(domain.StateNotFound)
		e.logger.Debug().Str("identifier", identifier).Msg("lookup found nothing")
		return err
	}

	e.transition(domain.StateSearchError)
	e.logger.Warn().Err(err).Str("identifier", identifier).Msg("lookup failed")

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return errors.LookupFailed("", err)
}

// RefreshAfterCommit re-resolves a row by its SKU, or its barcode when it has
// no SKU, and overwrites the stock fields with what the backend now reports.
// The row's quantity is not touched.
func (e *Engine) RefreshAfterCommit(ctx context.Context, lineID int64) (domain.LineItem, error) {
	row, ok := e.store.Get(lineID)
	if !ok {
		return domain.LineItem{}, errors.NotFound("line item")
	}

	identifier := row.SKU
	if identifier == "" {
		identifier = row.Barcode
	}
	if identifier == "" || row.WarehouseID == "" {
		return domain.LineItem{}, errors.MissingSelection("line item has no identifier or warehouse to refresh from")
	}

	result, err := e.lookup.Lookup(ctx, identifier, row.WarehouseID)
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return domain.LineItem{}, err
		}
		return domain.LineItem{}, errors.LookupFailed("", err)
	}
	if result == nil || result.Product.ID != row.ProductID {
		return domain.LineItem{}, errors.NotFoundMessage("product " + row.ProductID + " no longer resolves from " + identifier)
	}

	refreshed, ok := e.store.Refresh(lineID, *result)
	if !ok {
		return domain.LineItem{}, errors.NotFound("line item")
	}

	e.logger.Debug().
		Int64("line_id", lineID).
		Int("current_stock", refreshed.CurrentStock).
		Int("previous_quantity", refreshed.PreviousQuantity).
		Msg("line refreshed")

	return refreshed, nil
}

// ValidateQuantity parses a manually entered quantity. Negative, fractional
// and non-numeric input is rejected with INVALID_QUANTITY.
func (e *Engine) ValidateQuantity(raw any) (int, error) {
	return domain.ParseQuantity(raw)
}

// ApplyEdits applies draft edits and moves the session to Editing while the
// store has rows.
func (e *Engine) ApplyEdits(edits []domain.Edit) []domain.EditRejection {
	rejections := e.store.ApplyEdits(edits)
	if e.store.Len() > 0 {
		e.transition(domain.StateEditing)
	}
	return rejections
}

// Remove drops a row. The session goes back to Idle when nothing is left.
func (e *Engine) Remove(lineID int64) {
	e.store.Remove(lineID)
	if e.store.Len() == 0 {
		e.transition(domain.StateIdle)
	}
}

// UpdateStock sets one row's inventory record to an absolute quantity and then
// refreshes the row from the backend. Zero is a valid target; negative is not.
// Once the write is acknowledged the call succeeds; a failed refresh only
// shows up as the outcome's RefreshError.
func (e *Engine) UpdateStock(ctx context.Context, lineID int64, newQuantity int, sourceDoc string) (*domain.StockUpdateOutcome, error) {
	if e.stock == nil {
		return nil, errors.BadRequest("stock updates are not available for this session")
	}
	if newQuantity < 0 {
		return nil, errors.InvalidQuantity("quantity must be a non-negative integer")
	}

	row, ok := e.store.Get(lineID)
	if !ok {
		return nil, errors.NotFound("line item")
	}
	if row.InventoryID == "" {
		return nil, errors.MissingSelection("line item has no inventory record to update")
	}

	e.transition(domain.StateSubmitting)

	if _, err := e.stock.UpdateQuantity(ctx, row.InventoryID, newQuantity, strings.TrimSpace(sourceDoc)); err != nil {
		e.transition(domain.StateEditing)
		e.logger.Warn().Err(err).Str("inventory_id", row.InventoryID).Msg("stock update failed")
		return nil, asCommitError(err)
	}

	e.logger.Info().
		Str("inventory_id", row.InventoryID).
		Int("new_quantity", newQuantity).
		Msg("stock updated")

	outcome := &domain.StockUpdateOutcome{Line: row}
	refreshed, err := e.RefreshAfterCommit(ctx, lineID)
	e.transition(domain.StateIdle)
	if err != nil {
		e.logger.Warn().Err(err).Int64("line_id", lineID).Msg("refresh after stock update failed")
		outcome.RefreshError = errorMessage(err)
		return outcome, nil
	}
	outcome.Line = refreshed
	outcome.Refreshed = true
	return outcome, nil
}

// CreateProduct creates a catalog entry for a scan that found nothing and then
// merges the new product through a regular lookup by its SKU.
func (e *Engine) CreateProduct(ctx context.Context, entry domain.CatalogEntry) (domain.LineItem, error) {
	if e.catalog == nil {
		return domain.LineItem{}, errors.BadRequest("product creation is not available for this session")
	}

	entry.SKU = strings.TrimSpace(entry.SKU)
	entry.Barcode = strings.TrimSpace(entry.Barcode)
	if err := httputil.Validate(&entry); err != nil {
		return domain.LineItem{}, err
	}

	productID, err := e.catalog.CreateCatalogEntry(ctx, entry)
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return domain.LineItem{}, err
		}
		return domain.LineItem{}, errors.Internal("the product could not be created")
	}

	e.logger.Info().
		Str("product_id", productID).
		Str("sku", entry.SKU).
		Msg("catalog entry created")

	return e.LookupAndMerge(ctx, entry.SKU, entry.WarehouseID)
}

// Commit runs sub against the session store and tracks the Submitting state
func (e *Engine) Commit(ctx context.Context, sub *Submitter, cc domain.CommitContext) (*domain.CommitOutcome, error) {
	e.transition(domain.StateSubmitting)
	outcome, err := sub.Commit(ctx, e.store, cc)
	switch {
	case errors.Is(err, errors.ErrAlreadySubmitting):
		// the other commit owns the state
	case err != nil && e.store.Len() > 0:
		e.transition(domain.StateEditing)
	default:
		e.transition(domain.StateIdle)
	}
	return outcome, err
}

// asCommitError keeps collaborator messages verbatim and gives anything else
// the generic commit failure message.
func asCommitError(err error) error {
	if errors.Is(err, errors.ErrCommitFailed) {
		return err
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return errors.CommitFailed(appErr.Message, err)
	}
	return errors.CommitFailed("", err)
}
