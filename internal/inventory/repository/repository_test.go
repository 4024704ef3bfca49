package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stockscan/stockscan-backend/internal/inventory/repository"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lookupColumns = []string{
	"product_id", "name", "sku", "barcode", "inventory_id", "warehouse_id",
	"current_quantity", "previous_quantity", "qty_per_pack", "total_packs",
}

var inventoryColumns = []string{
	"id", "product_id", "warehouse_id", "current_quantity", "previous_quantity", "qty_per_pack", "updated_at",
}

func TestProductLookup_BarcodeFirst(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("WHERE p.barcode = $1").
		WithArgs("4006381333931", "WH1").
		WillReturnRows(testutil.MockRows(lookupColumns...).
			AddRow("P1", "Hex bolt", "HB-1", "4006381333931", "I1", "WH1", 120, 100, 50, 2))

	repo := repository.NewProductRepository(mockDB.DB)
	row, err := repo.Lookup(context.Background(), "4006381333931", "WH1")

	require.NoError(t, err)
	assert.Equal(t, "P1", row.ProductID)
	assert.Equal(t, 120, row.CurrentQuantity)
	assert.Equal(t, 100, row.PreviousQuantity)
	assert.Equal(t, 2, row.TotalPacks)
	mockDB.ExpectationsWereMet(t)
}

func TestProductLookup_FallsBackToSKU(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("WHERE p.barcode = $1").
		WithArgs("HB-1", "WH1").
		WillReturnRows(testutil.MockRows(lookupColumns...))
	mockDB.ExpectQuery("WHERE p.sku = $1").
		WithArgs("HB-1", "WH1").
		WillReturnRows(testutil.MockRows(lookupColumns...).
			AddRow("P1", "Hex bolt", "HB-1", "", "I1", "WH1", 7, 0, 1, 7))

	repo := repository.NewProductRepository(mockDB.DB)
	row, err := repo.Lookup(context.Background(), "HB-1", "WH1")

	require.NoError(t, err)
	assert.Equal(t, "HB-1", row.SKU)
	mockDB.ExpectationsWereMet(t)
}

func TestProductLookup_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("WHERE p.barcode = $1").WillReturnRows(testutil.MockRows(lookupColumns...))
	mockDB.ExpectQuery("WHERE p.sku = $1").WillReturnRows(testutil.MockRows(lookupColumns...))

	repo := repository.NewProductRepository(mockDB.DB)
	_, err := repo.Lookup(context.Background(), "NOPE", "WH1")

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestProductSearch_EscapesWildcards(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("(p.name ILIKE $1 OR p.sku ILIKE $1) ORDER BY p.name, p.sku LIMIT $3").
		WithArgs(`%10\%\_off\_%`, "WH1", 20).
		WillReturnRows(testutil.MockRows(lookupColumns...))

	repo := repository.NewProductRepository(mockDB.DB)
	rows, err := repo.Search(context.Background(), "10%_off_", "WH1", 20)

	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	mockDB.ExpectationsWereMet(t)
}

func TestProductSearch(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("JOIN inventory i ON i.product_id = p.id AND i.warehouse_id = $2").
		WithArgs("%bolt%", "WH1", 5).
		WillReturnRows(testutil.MockRows(lookupColumns...).
			AddRow("P1", "Hex bolt", "HB-1", "4006381333931", "I1", "WH1", 120, 100, 50, 2).
			AddRow("P2", "Carriage bolt", "CB-1", "", "I2", "WH1", 8, 8, 1, 8))

	repo := repository.NewProductRepository(mockDB.DB)
	rows, err := repo.Search(context.Background(), "bolt", "WH1", 5)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "P1", rows[0].ProductID)
	assert.Equal(t, "CB-1", rows[1].SKU)
	mockDB.ExpectationsWereMet(t)
}

func TestProductGetByID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	known := "6f1c2a9e-3b4d-4e5f-8a7b-9c0d1e2f3a4b"
	unstocked := "0b6e7c1d-2f3a-4b5c-9d8e-7f6a5b4c3d2e"
	mockDB.ExpectQuery("WHERE p.id = $1").
		WithArgs(known, "WH1").
		WillReturnRows(testutil.MockRows(lookupColumns...).
			AddRow(known, "Hex bolt", "HB-1", "4006381333931", "I1", "WH1", 120, 100, 50, 2))
	mockDB.ExpectQuery("WHERE p.id = $1").
		WithArgs(unstocked, "WH1").
		WillReturnRows(testutil.MockRows(lookupColumns...))

	repo := repository.NewProductRepository(mockDB.DB)
	row, err := repo.GetByID(context.Background(), known, "WH1")
	require.NoError(t, err)
	assert.Equal(t, "I1", row.InventoryID)

	_, err = repo.GetByID(context.Background(), unstocked, "WH1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = repo.GetByID(context.Background(), "not-a-uuid", "WH1")
	assert.True(t, errors.Is(err, errors.ErrNotFound), "no query for malformed ids")
	mockDB.ExpectationsWereMet(t)
}

func TestListWarehouses(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM warehouses").
		WillReturnRows(testutil.MockRows("id", "name").AddRow("WH1", "Main").AddRow("WH2", "Yard"))

	repo := repository.NewProductRepository(mockDB.DB)
	got, err := repo.ListWarehouses(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []repository.Warehouse{{ID: "WH1", Name: "Main"}, {ID: "WH2", Name: "Yard"}}, got)
	mockDB.ExpectationsWereMet(t)
}

func outBatch(quantity int) repository.Batch {
	return repository.Batch{
		BatchID:         "b-1",
		WarehouseID:     "WH1",
		AccountID:       "ACC-1",
		TransactionType: repository.TransactionOut,
		Lines:           []repository.BatchLine{{ProductID: "P1", Quantity: quantity, Barcode: "BC-P1"}},
	}
}

func TestApplyBatch_Out(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WithArgs(testutil.AnyUUID{}, "b-1", "Out", "WH1", "ACC-1", nil).
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))
	mockDB.ExpectQuery("FOR UPDATE").
		WithArgs("P1", "WH1").
		WillReturnRows(testutil.MockRows(inventoryColumns...).AddRow("I1", "P1", "WH1", 10, 4, 1, now))
	mockDB.ExpectExec("UPDATE inventory").
		WithArgs("I1", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO inventory_transaction_lines").
		WithArgs(testutil.AnyUUID{}, testutil.AnyUUID{}, "P1", "I1", 3, 10, 7, "BC-P1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	repo := repository.NewInventoryRepository(mockDB.DB)
	txn, err := repo.ApplyBatch(context.Background(), outBatch(3))

	require.NoError(t, err)
	require.Len(t, txn.Lines, 1)
	assert.Equal(t, 10, txn.Lines[0].PreviousQuantity)
	assert.Equal(t, 7, txn.Lines[0].NewQuantity)
	assert.False(t, txn.CreatedAt.IsZero())
	mockDB.ExpectationsWereMet(t)
}

func TestApplyBatch_OutBelowZeroRollsBack(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectQuery("FOR UPDATE").
		WillReturnRows(testutil.MockRows(inventoryColumns...).AddRow("I1", "P1", "WH1", 2, 0, 1, time.Now()))
	mockDB.ExpectRollback()

	repo := repository.NewInventoryRepository(mockDB.DB)
	_, err := repo.ApplyBatch(context.Background(), outBatch(3))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.Equal(t, "insufficient stock: 2 available, 3 requested", appErr.Message)
	mockDB.ExpectationsWereMet(t)
}

func TestApplyBatch_UnstockedProduct(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectQuery("FOR UPDATE").WillReturnRows(testutil.MockRows(inventoryColumns...))
	mockDB.ExpectRollback()

	repo := repository.NewInventoryRepository(mockDB.DB)
	_, err := repo.ApplyBatch(context.Background(), outBatch(1))

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestApplyBatch_QuoteLeavesStock(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	batch := outBatch(5)
	batch.TransactionType = repository.TransactionQuote

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectQuery("FOR UPDATE").
		WillReturnRows(testutil.MockRows(inventoryColumns...).AddRow("I1", "P1", "WH1", 2, 0, 1, time.Now()))
	mockDB.ExpectExec("INSERT INTO inventory_transaction_lines").
		WithArgs(testutil.AnyUUID{}, testutil.AnyUUID{}, "P1", "I1", 5, 2, 2, "BC-P1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	repo := repository.NewInventoryRepository(mockDB.DB)
	txn, err := repo.ApplyBatch(context.Background(), batch)

	require.NoError(t, err)
	assert.Equal(t, 2, txn.Lines[0].NewQuantity)
	mockDB.ExpectationsWereMet(t)
}

func TestApplyBatch_DuplicateBatchID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "inventory_transactions_batch_id_key"})
	mockDB.ExpectRollback()

	repo := repository.NewInventoryRepository(mockDB.DB)
	_, err := repo.ApplyBatch(context.Background(), outBatch(1))

	assert.True(t, errors.Is(err, errors.ErrConflict))
	mockDB.ExpectationsWereMet(t)
}

func TestSetQuantity(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FOR UPDATE").
		WithArgs("I1").
		WillReturnRows(testutil.MockRows(inventoryColumns...).AddRow("I1", "P1", "WH1", 10, 3, 1, time.Now()))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WithArgs(testutil.AnyUUID{}, nil, "Adjustment", "WH1", nil, "GRN-7").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectExec("UPDATE inventory").
		WithArgs("I1", 25).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO inventory_transaction_lines").
		WithArgs(testutil.AnyUUID{}, testutil.AnyUUID{}, "P1", "I1", 25, 10, 25, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	repo := repository.NewInventoryRepository(mockDB.DB)
	txn, err := repo.SetQuantity(context.Background(), "I1", 25, "GRN-7")

	require.NoError(t, err)
	assert.Equal(t, repository.TransactionAdjustment, txn.TransactionType)
	assert.Equal(t, 10, txn.Lines[0].PreviousQuantity)
	mockDB.ExpectationsWereMet(t)
}

func TestSetQuantity_RejectsNegative(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewInventoryRepository(mockDB.DB)
	_, err := repo.SetQuantity(context.Background(), "I1", -1, "")

	assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))
	mockDB.ExpectationsWereMet(t)
}

func newProduct() repository.NewProduct {
	return repository.NewProduct{
		Name: "Hex bolt", Brand: "Acme", Category: "Fasteners", UOM: "box", Size: "M8",
		Supplier: "Bolt & Co", WarehouseID: "WH1", SKU: "HB-1", Barcode: "4006381333931",
		OpeningQuantity: 12, UnitPrice: decimal.RequireFromString("12.50"),
	}
}

func TestCreateProduct(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO products").
		WithArgs(testutil.AnyUUID{}, "HB-1", "4006381333931", "Hex bolt", "Acme", "Fasteners", "box", "M8", "Bolt & Co", sqlmock.AnyArg()).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectQuery("INSERT INTO inventory").
		WithArgs(testutil.AnyUUID{}, testutil.AnyUUID{}, "WH1", 12, 1).
		WillReturnRows(testutil.MockRows("updated_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	repo := repository.NewCatalogRepository(mockDB.DB)
	product, inv, err := repo.CreateProduct(context.Background(), newProduct())

	require.NoError(t, err)
	assert.Equal(t, product.ID, inv.ProductID)
	assert.Equal(t, 1, inv.QtyPerPack, "zero pack size is stored as 1")
	assert.True(t, product.UnitPrice.Equal(decimal.RequireFromString("12.5")))
	mockDB.ExpectationsWereMet(t)
}

func TestCreateProduct_DuplicateSKU(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO products").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "products_sku_key"})
	mockDB.ExpectRollback()

	repo := repository.NewCatalogRepository(mockDB.DB)
	_, _, err := repo.CreateProduct(context.Background(), newProduct())

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.Equal(t, "a product with this SKU already exists", appErr.Message)
	mockDB.ExpectationsWereMet(t)
}
