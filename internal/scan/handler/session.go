package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/internal/scan/service"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/httputil"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

const (
	defaultPollTimeout = 25 * time.Second
	maxPollTimeout     = 60 * time.Second
	maxIdentifierLen   = 200
	maxSearchLimit     = 100
)

// SessionHandler exposes scan sessions over HTTP
type SessionHandler struct {
	manager *service.Manager
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *service.Manager, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  log,
	}
}

// Routes mounts the session API on r
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.End)
		r.Post("/scan", h.Scan)
		r.Post("/lines", h.AddLine)
		r.Put("/lines", h.EditLines)
		r.Delete("/lines/{lineID}", h.RemoveLine)
		r.Post("/lines/{lineID}/refresh", h.RefreshLine)
		r.Put("/lines/{lineID}/stock", h.UpdateStock)
		r.Get("/products", h.SearchProducts)
		r.Post("/products", h.CreateProduct)
		r.Post("/commit", h.Commit)
		r.Get("/events", h.Events)
	})
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return nil, false
	}
	return sess, true
}

// sameWarehouse accepts an empty warehouse or the session's own. Rows of one
// session are committed against a single warehouse.
func sameWarehouse(sess *service.Session, warehouseID string) error {
	warehouseID = strings.TrimSpace(warehouseID)
	if warehouseID == "" || warehouseID == sess.WarehouseID {
		return nil
	}
	return errors.MissingContext("this session scans into warehouse " + sess.WarehouseID + ", not " + warehouseID)
}

func lineID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Error(w, errors.BadRequest("invalid line id"))
		return 0, false
	}
	return id, true
}

// Create starts a session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSessionInput
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	sess, err := h.manager.Create(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, sess.Info())
}

// Get returns the session with its rows
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, sess.Info())
}

// End drops the session
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.End(chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

type scanRequest struct {
	Identifier  string `json:"identifier" validate:"required"`
	WarehouseID string `json:"warehouse_id"`
}

// Scan looks up a barcode or SKU and merges it into the session
func (h *SessionHandler) Scan(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req scanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	if len(req.Identifier) > maxIdentifierLen {
		httputil.Error(w, errors.BadRequest("identifier too long"))
		return
	}
	if err := sameWarehouse(sess, req.WarehouseID); err != nil {
		httputil.Error(w, err)
		return
	}

	row, err := sess.Engine.LookupAndMerge(r.Context(), req.Identifier, sess.WarehouseID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, row)
}

// SearchProducts lists catalog matches for ?q= in the session warehouse
func (h *SessionHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	keyword := r.URL.Query().Get("q")
	if len(keyword) > maxIdentifierLen {
		httputil.Error(w, errors.BadRequest("search keyword too long"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchLimit {
			httputil.Error(w, errors.BadRequest("limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	results, err := sess.Engine.SearchProducts(r.Context(), keyword, sess.WarehouseID, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, results, &httputil.Meta{Total: int64(len(results))})
}

type addLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

// AddLine merges a product picked from search results into the session
func (h *SessionHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	row, err := sess.Engine.AddProduct(r.Context(), req.ProductID, sess.WarehouseID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, row)
}

type editLinesRequest struct {
	Edits []domain.Edit `json:"edits" validate:"required,min=1,dive"`
}

type editLinesResponse struct {
	Lines      []domain.LineItem      `json:"lines"`
	Rejections []domain.EditRejection `json:"rejections"`
	Version    uint64                 `json:"version"`
}

// EditLines applies draft edits. Rejected edits are reported alongside the
// resulting rows; the request itself succeeds.
func (h *SessionHandler) EditLines(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req editLinesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	rejections := sess.Engine.ApplyEdits(req.Edits)
	if rejections == nil {
		rejections = []domain.EditRejection{}
	}
	lines, version := sess.Store().Snapshot()

	httputil.JSON(w, http.StatusOK, editLinesResponse{Lines: lines, Rejections: rejections, Version: version})
}

// RemoveLine drops a row. Removing an unknown row is not an error.
func (h *SessionHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := lineID(w, r)
	if !ok {
		return
	}

	sess.Engine.Remove(id)
	httputil.NoContent(w)
}

// RefreshLine re-resolves a row from the inventory service
func (h *SessionHandler) RefreshLine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := lineID(w, r)
	if !ok {
		return
	}

	row, err := sess.Engine.RefreshAfterCommit(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, row)
}

type updateStockRequest struct {
	Quantity  any    `json:"quantity"`
	SourceDoc string `json:"source_doc"`
}

// UpdateStock sets one row's stock to an absolute value. A failed refresh
// after the write is reported in the body, not as an error status.
func (h *SessionHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := lineID(w, r)
	if !ok {
		return
	}

	var req updateStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	quantity, err := sess.Engine.ValidateQuantity(req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	outcome, err := sess.Engine.UpdateStock(r.Context(), id, quantity, req.SourceDoc)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, outcome)
}

// CreateProduct adds a catalog entry for an unknown scan and merges it.
// The entry is always stocked in the session warehouse.
func (h *SessionHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var entry domain.CatalogEntry
	if err := httputil.DecodeJSON(r, &entry); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := sameWarehouse(sess, entry.WarehouseID); err != nil {
		httputil.Error(w, err)
		return
	}
	entry.WarehouseID = sess.WarehouseID

	row, err := sess.Engine.CreateProduct(r.Context(), entry)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, row)
}

type commitRequest struct {
	TransactionType string `json:"transaction_type" validate:"omitempty,oneof=In Out Adjustment Quote"`
	AccountID       string `json:"account_id"`
}

// Commit submits the session rows as one batch
func (h *SessionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req commitRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	cc := sess.CommitContext(domain.TransactionType(req.TransactionType))
	if req.AccountID != "" {
		cc.AccountID = req.AccountID
	}

	outcome, err := sess.Engine.Commit(r.Context(), sess.Submitter, cc)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, outcome)
}

// Events long-polls for a store change. It answers as soon as the store
// version is past ?since=, or with the unchanged session when ?timeout= runs
// out.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	since, err := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
	if err != nil && r.URL.Query().Get("since") != "" {
		httputil.Error(w, errors.BadRequest("since must be a store version"))
		return
	}

	timeout := defaultPollTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httputil.Error(w, errors.BadRequest("invalid timeout"))
			return
		}
		timeout = min(d, maxPollTimeout)
	}

	// subscribe before reading the version so no change slips in between
	changes, cancel := sess.Store().Subscribe(1)
	defer cancel()

	if sess.Store().Version() <= since {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-changes:
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}

	httputil.JSON(w, http.StatusOK, sess.Info())
}
