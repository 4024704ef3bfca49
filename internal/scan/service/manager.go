package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/internal/scan/store"
	"github.com/stockscan/stockscan-backend/pkg/config"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

// Session is one hosted workflow: an engine over its own store plus the
// selections the workflow commits with.
type Session struct {
	ID          string
	Mode        domain.Mode
	Kind        domain.CommitKind
	WarehouseID string
	AccountID   string
	Engine      *Engine
	Submitter   *Submitter
	CreatedAt   time.Time

	lastActive atomic.Int64
}

// Store returns the session store
func (s *Session) Store() *store.Store {
	return s.Engine.Store()
}

// LastActive returns the last time the session was used
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

// CommitContext builds the commit selections from the session
func (s *Session) CommitContext(txType domain.TransactionType) domain.CommitContext {
	return domain.CommitContext{
		Kind:            s.Kind,
		WarehouseID:     s.WarehouseID,
		AccountID:       s.AccountID,
		TransactionType: txType,
	}
}

// Info returns a snapshot for the API
func (s *Session) Info() domain.SessionInfo {
	lines, version := s.Store().Snapshot()
	return domain.SessionInfo{
		ID:          s.ID,
		Mode:        s.Mode,
		Kind:        s.Kind,
		WarehouseID: s.WarehouseID,
		AccountID:   s.AccountID,
		State:       s.Engine.State(),
		Version:     version,
		Lines:       lines,
		CreatedAt:   s.CreatedAt,
		LastActive:  s.LastActive(),
	}
}

// CreateSessionInput holds the selections a new session starts with
type CreateSessionInput struct {
	Mode        string `json:"mode" validate:"omitempty,oneof=increment absolute"`
	Kind        string `json:"kind" validate:"omitempty,oneof=order quote transaction stock_correction"`
	WarehouseID string `json:"warehouse_id"`
	AccountID   string `json:"account_id"`
}

// Manager hosts scan sessions for the HTTP surface
type Manager struct {
	backend Backend
	cfg     config.SessionConfig
	logger  *logger.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager
func NewManager(backend Backend, cfg config.SessionConfig, log *logger.Logger) *Manager {
	return &Manager{
		backend:  backend,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session. An empty mode uses the configured default and an
// empty kind follows the mode. An empty warehouse is filled in only when the
// backend reports exactly one warehouse.
func (m *Manager) Create(ctx context.Context, in CreateSessionInput) (*Session, error) {
	modeStr := in.Mode
	if modeStr == "" {
		modeStr = m.cfg.DefaultMode
	}
	mode, err := domain.ParseMode(modeStr)
	if err != nil {
		return nil, errors.BadRequest(err.Error())
	}

	kind := domain.CommitKind(in.Kind)
	if kind == "" {
		kind = domain.CommitTransaction
		if mode == domain.ModeAbsolute {
			kind = domain.CommitStockCorrection
		}
	}

	warehouseID := strings.TrimSpace(in.WarehouseID)
	if warehouseID == "" {
		warehouseID, err = m.soleWarehouse(ctx)
		if err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	full := len(m.sessions) >= m.cfg.MaxSessions
	m.mu.RUnlock()
	if full {
		return nil, errors.Conflict("too many active scan sessions")
	}

	id := uuid.New().String()
	log := m.logger.WithSession(id, string(mode)).WithWarehouse(warehouseID)

	st := store.New(mode)
	engine := NewEngine(st, m.backend, m.backend, m.backend, m.backend, log)
	now := m.now()
	sess := &Session{
		ID:          id,
		Mode:        mode,
		Kind:        kind,
		WarehouseID: warehouseID,
		AccountID:   strings.TrimSpace(in.AccountID),
		Engine:      engine,
		Submitter:   NewSubmitter(m.backend, engine, log),
		CreatedAt:   now,
	}
	sess.touch(now)

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, errors.Conflict("too many active scan sessions")
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	log.Info().Str("kind", string(kind)).Msg("scan session started")
	return sess, nil
}

func (m *Manager) soleWarehouse(ctx context.Context) (string, error) {
	warehouses, err := m.backend.ListWarehouses(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to list warehouses")
		return "", errors.MissingSelection("select a warehouse")
	}
	if len(warehouses) != 1 {
		return "", errors.MissingSelection("select a warehouse")
	}
	return warehouses[0].ID, nil
}

// Get returns a live session and marks it as used
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("session")
	}
	sess.touch(m.now())
	return sess, nil
}

// End drops a session and releases its subscribers
func (m *Manager) End(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return errors.NotFound("session")
	}

	sess.Store().Close()
	m.logger.Info().Str("session_id", id).Msg("scan session ended")
	return nil
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep ends sessions idle for longer than the configured timeout. Sessions
// with a commit in flight are kept.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		if sess.LastActive().Before(cutoff) && !sess.Store().Submitting() {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.Store().Close()
	}
	if len(expired) > 0 {
		m.logger.Info().Int("expired", len(expired)).Msg("idle scan sessions swept")
	}
	return len(expired)
}

// Run sweeps on the configured interval until ctx is done
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
