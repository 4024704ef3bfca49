// Package store holds the in-memory line item collection of one scan session.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/pkg/errors"
)

// ChangeKind says which mutation produced a Change
type ChangeKind string

const (
	ChangeInserted  ChangeKind = "inserted"
	ChangeMerged    ChangeKind = "merged"
	ChangeEdited    ChangeKind = "edited"
	ChangeRemoved   ChangeKind = "removed"
	ChangeCleared   ChangeKind = "cleared"
	ChangeSettled   ChangeKind = "settled"
	ChangeRefreshed ChangeKind = "refreshed"
)

// Change is emitted after every mutation that altered the collection.
// LineID is zero for Clear, Settle and multi-row edits.
type Change struct {
	Version uint64     `json:"version"`
	Kind    ChangeKind `json:"kind"`
	LineID  int64      `json:"line_id,omitempty"`
}

// Store is an ordered collection of line items keyed by product identity.
// All methods are safe for concurrent use; mutations are serialized.
type Store struct {
	mode domain.Mode

	mu        sync.Mutex
	nextID    int64
	rows      []*domain.LineItem
	byID      map[int64]*domain.LineItem
	byProduct map[string]int64
	version   uint64
	subs      map[int]chan Change
	nextSub   int
	closed    bool

	submitting atomic.Bool
}

// New creates an empty store for the given mode
func New(mode domain.Mode) *Store {
	return &Store{
		mode:      mode,
		byID:      make(map[int64]*domain.LineItem),
		byProduct: make(map[string]int64),
		subs:      make(map[int]chan Change),
	}
}

// Mode returns the merge mode the store was created with
func (s *Store) Mode() domain.Mode {
	return s.mode
}

// Merge folds a lookup result into the collection. An existing row for the
// same product keeps its ID and position and gets its catalog and stock fields
// overwritten; in increment mode its quantity also goes up by one. A new row
// starts at 1 (increment) or at the current stock (absolute).
func (s *Store) Merge(result domain.LookupResult) domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byProduct[result.Product.ID]; ok {
		row := s.byID[id]
		applyLookup(row, result)
		if s.mode == domain.ModeIncrement {
			row.Quantity++
		}
		if row.Barcode == "" {
			row.Barcode = result.Identifier
		}
		s.notify(ChangeMerged, row.ID)
		return *row
	}

	s.nextID++
	row := &domain.LineItem{
		ID:        s.nextID,
		ProductID: result.Product.ID,
		Barcode:   result.Identifier,
	}
	applyLookup(row, result)
	if s.mode == domain.ModeIncrement {
		row.Quantity = 1
	} else {
		row.Quantity = result.Inventory.CurrentQuantity
	}

	s.rows = append(s.rows, row)
	s.byID[row.ID] = row
	s.byProduct[row.ProductID] = row.ID
	s.notify(ChangeInserted, row.ID)
	return *row
}

// Refresh overwrites the stock fields of one row from an authoritative lookup.
// Quantity is left alone. It reports false when the row no longer exists.
func (s *Store) Refresh(id int64, result domain.LookupResult) (domain.LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok {
		return domain.LineItem{}, false
	}
	applyLookup(row, result)
	s.notify(ChangeRefreshed, id)
	return *row, true
}

func applyLookup(row *domain.LineItem, result domain.LookupResult) {
	row.SKU = result.Product.SKU
	row.ProductName = result.Product.Name
	row.CurrentStock = result.Inventory.CurrentQuantity
	row.PreviousQuantity = result.Inventory.PreviousQuantity
	row.QtyPerPack = result.Inventory.QtyPerPack
	row.TotalPacks = result.Inventory.TotalPacks
	if result.Inventory.ID != "" {
		row.InventoryID = result.Inventory.ID
	}
	if result.Inventory.WarehouseID != "" {
		row.WarehouseID = result.Inventory.WarehouseID
	}
}

// ApplyEdits applies draft edits in order. Edits for rows that no longer exist
// are dropped. Invalid quantities and edits of backend-owned fields are
// reported and leave the row unchanged.
func (s *Store) ApplyEdits(edits []domain.Edit) []domain.EditRejection {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rejections []domain.EditRejection
	var touched []int64
	for _, e := range edits {
		row, ok := s.byID[e.LineID]
		if !ok {
			continue
		}

		if e.Field != domain.FieldQuantity {
			rejections = append(rejections, rejection(e, errors.ImmutableField(e.Field)))
			continue
		}

		q, err := domain.ParseQuantity(e.Value)
		if err != nil {
			var appErr *errors.AppError
			errors.As(err, &appErr)
			rejections = append(rejections, rejection(e, appErr))
			continue
		}

		if row.Quantity != q {
			row.Quantity = q
			touched = append(touched, row.ID)
		}
	}

	switch len(touched) {
	case 0:
	case 1:
		s.notify(ChangeEdited, touched[0])
	default:
		s.notify(ChangeEdited, 0)
	}
	return rejections
}

func rejection(e domain.Edit, appErr *errors.AppError) domain.EditRejection {
	return domain.EditRejection{
		LineID:  e.LineID,
		Field:   e.Field,
		Code:    appErr.Code,
		Message: appErr.Message,
	}
}

// Remove deletes a row. Removing an absent row is a no-op.
func (s *Store) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	delete(s.byProduct, row.ProductID)
	for i, r := range s.rows {
		if r.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			break
		}
	}
	s.notify(ChangeRemoved, id)
}

// Clear empties the collection. IDs keep counting up afterwards.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rows) == 0 {
		return
	}
	s.rows = nil
	s.byID = make(map[int64]*domain.LineItem)
	s.byProduct = make(map[string]int64)
	s.notify(ChangeCleared, 0)
}

// Settle takes committed quantities off the rows they were read from. sent
// maps line IDs to the quantity that went out; a row whose quantity did not
// grow since is removed, and one that did keeps the difference. Rows merged
// after the snapshot are untouched.
func (s *Store) Settle(sent map[int64]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	kept := s.rows[:0]
	for _, row := range s.rows {
		qty, ok := sent[row.ID]
		if !ok {
			kept = append(kept, row)
			continue
		}
		changed = true
		if row.Quantity > qty {
			row.Quantity -= qty
			kept = append(kept, row)
			continue
		}
		delete(s.byID, row.ID)
		delete(s.byProduct, row.ProductID)
	}
	for i := len(kept); i < len(s.rows); i++ {
		s.rows[i] = nil
	}
	s.rows = kept
	if changed {
		s.notify(ChangeSettled, 0)
	}
}

// All returns a copy of the rows in insertion order
func (s *Store) All() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.LineItem, len(s.rows))
	for i, r := range s.rows {
		out[i] = *r
	}
	return out
}

// Snapshot returns the rows together with the version they correspond to
func (s *Store) Snapshot() ([]domain.LineItem, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.LineItem, len(s.rows))
	for i, r := range s.rows {
		out[i] = *r
	}
	return out, s.version
}

// Get returns a copy of one row
func (s *Store) Get(id int64) (domain.LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok {
		return domain.LineItem{}, false
	}
	return *row, true
}

// FindByProduct returns the row holding productID, if any
func (s *Store) FindByProduct(productID string) (domain.LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byProduct[productID]
	if !ok {
		return domain.LineItem{}, false
	}
	return *s.byID[id], true
}

// Len returns the number of rows
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Version returns the change counter. It goes up by one per effective mutation.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers for change notifications. Sends never block a mutation:
// when the buffer is full the change is dropped and the subscriber is expected
// to re-sync through Version and All. The cancel func is idempotent.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	key := s.nextSub
	s.nextSub++
	s.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[key]; ok {
				delete(s.subs, key)
				close(c)
			}
		})
	}
}

// Close releases all subscribers. The rows stay readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for key, ch := range s.subs {
		delete(s.subs, key)
		close(ch)
	}
}

// notify must be called with mu held
func (s *Store) notify(kind ChangeKind, lineID int64) {
	s.version++
	c := Change{Version: s.version, Kind: kind, LineID: lineID}
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// TryBeginSubmit marks the store as having a commit in flight.
// It returns false when one already is.
func (s *Store) TryBeginSubmit() bool {
	return s.submitting.CompareAndSwap(false, true)
}

// EndSubmit clears the in-flight commit mark
func (s *Store) EndSubmit() {
	s.submitting.Store(false)
}

// Submitting reports whether a commit is in flight
func (s *Store) Submitting() bool {
	return s.submitting.Load()
}
