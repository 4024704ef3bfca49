package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/pkg/errors"
)

// fakeBackend is an in-memory inventory service. Identifiers resolve through
// products keyed by barcode or SKU; stock is tracked per product.
type fakeBackend struct {
	mu sync.Mutex

	products   map[string]domain.Product // by product ID
	stock      map[string]*domain.InventorySnapshot
	warehouses []domain.Warehouse

	lookupErr  error
	commitErr  error
	updateErr  error
	catalogErr error

	// failLookupsAfterCommit becomes lookupErr once a commit succeeds
	failLookupsAfterCommit error

	// commitGate, when set, blocks CommitBatch until it is closed
	commitGate chan struct{}
	// commitStarted is signalled when CommitBatch is entered
	commitStarted chan struct{}

	lookups  []string
	searches []string
	batches []domain.Batch
	updates []stockUpdate
	created []domain.CatalogEntry
}

type stockUpdate struct {
	InventoryID string
	Quantity    int
	SourceDoc   string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products:   make(map[string]domain.Product),
		stock:      make(map[string]*domain.InventorySnapshot),
		warehouses: []domain.Warehouse{{ID: "WH1", Name: "Main"}},
	}
}

func (f *fakeBackend) addProduct(id string, current, previous int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id] = domain.Product{ID: id, Name: "Product " + id, SKU: "SKU-" + id, Barcode: "BC-" + id}
	f.stock[id] = &domain.InventorySnapshot{
		ID:               "I-" + id,
		WarehouseID:      "WH1",
		CurrentQuantity:  current,
		PreviousQuantity: previous,
		QtyPerPack:       1,
		TotalPacks:       current,
	}
}

func (f *fakeBackend) resolve(identifier string) (domain.Product, bool) {
	for _, p := range f.products {
		if p.Barcode == identifier || p.SKU == identifier {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (f *fakeBackend) Lookup(ctx context.Context, identifier, warehouseID string) (*domain.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, identifier)
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	p, ok := f.resolve(identifier)
	if !ok {
		return nil, errors.NotFoundMessage("no inventory found for " + identifier)
	}
	return &domain.LookupResult{Identifier: identifier, Product: p, Inventory: *f.stock[p.ID]}, nil
}

func (f *fakeBackend) SearchProducts(ctx context.Context, keyword, warehouseID string, limit int) ([]domain.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, keyword)
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var results []domain.LookupResult
	needle := strings.ToLower(keyword)
	for id, p := range f.products {
		inv := f.stock[id]
		if inv.WarehouseID != warehouseID {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), needle) || strings.Contains(strings.ToLower(p.SKU), needle) {
			results = append(results, domain.LookupResult{Identifier: p.Barcode, Product: p, Inventory: *inv})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Product.Name < results[j].Product.Name })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeBackend) GetProduct(ctx context.Context, productID, warehouseID string) (*domain.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, productID)
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	p, ok := f.products[productID]
	if !ok || f.stock[productID].WarehouseID != warehouseID {
		return nil, errors.NotFoundMessage("no inventory found for " + productID)
	}
	return &domain.LookupResult{Identifier: p.Barcode, Product: p, Inventory: *f.stock[productID]}, nil
}

func (f *fakeBackend) CommitBatch(ctx context.Context, batch domain.Batch) (*domain.Ack, error) {
	if f.commitStarted != nil {
		f.commitStarted <- struct{}{}
	}
	if f.commitGate != nil {
		<-f.commitGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	for _, line := range batch.Lines {
		inv := f.stock[line.ProductID]
		if inv == nil {
			continue
		}
		inv.PreviousQuantity = inv.CurrentQuantity
		switch batch.TransactionType {
		case domain.TransactionIn:
			inv.CurrentQuantity += line.Quantity
		case domain.TransactionOut:
			inv.CurrentQuantity -= line.Quantity
		case domain.TransactionAdjustment:
			inv.CurrentQuantity = line.Quantity
		}
		inv.TotalPacks = inv.CurrentQuantity
	}
	if f.failLookupsAfterCommit != nil {
		f.lookupErr = f.failLookupsAfterCommit
	}
	return &domain.Ack{TransactionID: "TX-1"}, nil
}

func (f *fakeBackend) UpdateQuantity(ctx context.Context, inventoryID string, newQuantity int, sourceDoc string) (*domain.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, stockUpdate{InventoryID: inventoryID, Quantity: newQuantity, SourceDoc: sourceDoc})
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for _, inv := range f.stock {
		if inv.ID == inventoryID {
			inv.PreviousQuantity = inv.CurrentQuantity
			inv.CurrentQuantity = newQuantity
			inv.TotalPacks = newQuantity
		}
	}
	return &domain.Ack{}, nil
}

func (f *fakeBackend) CreateCatalogEntry(ctx context.Context, entry domain.CatalogEntry) (string, error) {
	f.mu.Lock()
	f.created = append(f.created, entry)
	err := f.catalogErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	id := "NEW-" + entry.SKU
	f.addProduct(id, entry.OpeningQuantity, 0)
	f.mu.Lock()
	p := f.products[id]
	p.SKU = entry.SKU
	p.Barcode = entry.Barcode
	p.Name = entry.Name
	f.products[id] = p
	f.mu.Unlock()
	return id, nil
}

func (f *fakeBackend) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.warehouses, nil
}

func (f *fakeBackend) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeBackend) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeBackend) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lookups)
}
