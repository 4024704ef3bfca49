package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderContext() domain.CommitContext {
	return domain.CommitContext{Kind: domain.CommitOrder, WarehouseID: "WH1", AccountID: "ACC-1"}
}

func setup(mode domain.Mode, products ...string) (*fakeBackend, *Engine, *Submitter) {
	backend := newFakeBackend()
	for _, p := range products {
		backend.addProduct(p, 10, 2)
	}
	engine := newTestEngine(mode, backend)
	return backend, engine, NewSubmitter(backend, engine, logger.Nop())
}

func scan(t *testing.T, engine *Engine, product string) domain.LineItem {
	t.Helper()
	row, err := engine.LookupAndMerge(context.Background(), "BC-"+product, "WH1")
	require.NoError(t, err)
	return row
}

func setQuantity(engine *Engine, id int64, q int) {
	engine.ApplyEdits([]domain.Edit{{LineID: id, Field: domain.FieldQuantity, Value: q}})
}

func TestCommit_EmptyStore(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement)

	_, err := sub.Commit(context.Background(), engine.Store(), orderContext())

	assert.True(t, errors.Is(err, errors.ErrEmptyBatch))
	assert.Equal(t, 0, backend.batchCount())
}

func TestCommit_MissingContext(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1")
	scan(t, engine, "P1")
	ctx := context.Background()

	cc := orderContext()
	cc.AccountID = " "
	_, err := sub.Commit(ctx, engine.Store(), cc)
	assert.True(t, errors.Is(err, errors.ErrMissingContext))

	cc = orderContext()
	cc.WarehouseID = ""
	_, err = sub.Commit(ctx, engine.Store(), cc)
	assert.True(t, errors.Is(err, errors.ErrMissingContext))

	_, err = sub.Commit(ctx, engine.Store(), domain.CommitContext{Kind: domain.CommitQuote, WarehouseID: "WH1"})
	assert.True(t, errors.Is(err, errors.ErrMissingContext))

	_, err = sub.Commit(ctx, engine.Store(), domain.CommitContext{
		Kind: domain.CommitTransaction, WarehouseID: "WH1", TransactionType: "Inbound",
	})
	assert.True(t, errors.Is(err, errors.ErrMissingContext))

	assert.Equal(t, 0, backend.batchCount())
	assert.Equal(t, 1, engine.Store().Len())
}

func TestCommit_TransactionWithoutAccountIsAllowed(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1")
	scan(t, engine, "P1")

	out, err := sub.Commit(context.Background(), engine.Store(), domain.CommitContext{
		Kind: domain.CommitTransaction, WarehouseID: "WH1",
	})

	require.NoError(t, err)
	assert.True(t, out.Cleared)
	require.Len(t, backend.batches, 1)
	assert.Equal(t, domain.TransactionIn, backend.batches[0].TransactionType)
	assert.Empty(t, backend.batches[0].AccountID)
}

func TestCommit_FilteringLaw(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1", "P2")
	r1 := scan(t, engine, "P1")
	r2 := scan(t, engine, "P2")
	setQuantity(engine, r1.ID, 0)
	setQuantity(engine, r2.ID, 0)

	_, err := sub.Commit(context.Background(), engine.Store(), orderContext())

	assert.True(t, errors.Is(err, errors.ErrNoValidLines))
	assert.Equal(t, 0, backend.batchCount())
	assert.Equal(t, 2, engine.Store().Len())
}

func TestCommit_PayloadExcludesZeroQuantityRows(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1", "P2", "P3")
	scan(t, engine, "P1")
	r2 := scan(t, engine, "P2")
	scan(t, engine, "P2")
	r3 := scan(t, engine, "P3")
	setQuantity(engine, r3.ID, 0)

	out, err := sub.Commit(context.Background(), engine.Store(), orderContext())
	require.NoError(t, err)

	require.Len(t, backend.batches, 1)
	batch := backend.batches[0]
	assert.Equal(t, []domain.CommitLine{
		{ProductID: "P1", Quantity: 1, Barcode: "BC-P1"},
		{ProductID: "P2", Quantity: 2, Barcode: "BC-P2"},
	}, batch.Lines)
	assert.Equal(t, "WH1", batch.WarehouseID)
	assert.Equal(t, "ACC-1", batch.AccountID)
	assert.Equal(t, domain.TransactionOut, batch.TransactionType)
	assert.NotEmpty(t, batch.BatchID)

	assert.Equal(t, batch.BatchID, out.BatchID)
	assert.Equal(t, "TX-1", out.TransactionID)
	assert.Equal(t, 2, out.Committed)
	assert.True(t, out.Cleared)
	assert.Equal(t, 0, engine.Store().Len(), "ordering commit clears the store")

	// IDs keep counting after a clear
	next := scan(t, engine, "P1")
	assert.Greater(t, next.ID, r2.ID)
}

func TestCommit_FailureLeavesStoreUntouched(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1", "P2")
	scan(t, engine, "P1")
	r2 := scan(t, engine, "P2")
	setQuantity(engine, r2.ID, 7)
	backend.commitErr = errors.CommitFailed("Insufficient stock for SKU-P2", nil)

	before := engine.Store().All()
	versionBefore := engine.Store().Version()

	_, err := sub.Commit(context.Background(), engine.Store(), orderContext())

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "COMMIT_FAILED", appErr.Code)
	assert.Equal(t, "Insufficient stock for SKU-P2", appErr.Message)
	assert.Equal(t, before, engine.Store().All())
	assert.Equal(t, versionBefore, engine.Store().Version())
	assert.Equal(t, 1, backend.batchCount(), "no retry")
}

func TestCommit_TransportFailureHasGenericMessage(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1")
	scan(t, engine, "P1")
	backend.commitErr = fmt.Errorf("context deadline exceeded")

	_, err := sub.Commit(context.Background(), engine.Store(), orderContext())

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "COMMIT_FAILED", appErr.Code)
	assert.Equal(t, "the transaction could not be committed", appErr.Message)
	assert.Equal(t, 1, engine.Store().Len())
}

func TestCommit_AbsoluteModeRefreshesCommittedRows(t *testing.T) {
	backend, engine, sub := setup(domain.ModeAbsolute, "P1", "P2")
	r1 := scan(t, engine, "P1")
	r2 := scan(t, engine, "P2")
	setQuantity(engine, r1.ID, 25)
	setQuantity(engine, r2.ID, 0)

	out, err := sub.Commit(context.Background(), engine.Store(), domain.CommitContext{
		Kind: domain.CommitStockCorrection, WarehouseID: "WH1",
	})
	require.NoError(t, err)

	require.Len(t, backend.batches, 1)
	assert.Equal(t, domain.TransactionAdjustment, backend.batches[0].TransactionType)
	assert.Len(t, backend.batches[0].Lines, 1)

	assert.False(t, out.Cleared)
	require.Len(t, out.Refreshed, 1)
	assert.Empty(t, out.RefreshErrors)

	got, ok := engine.Store().Get(r1.ID)
	require.True(t, ok)
	assert.Equal(t, 25, got.CurrentStock)
	assert.Equal(t, 10, got.PreviousQuantity)

	untouched, _ := engine.Store().Get(r2.ID)
	assert.Equal(t, 10, untouched.CurrentStock)
	assert.Equal(t, 2, untouched.PreviousQuantity)
	assert.Equal(t, 2, engine.Store().Len())
}

func TestCommit_AbsoluteModeReportsRefreshFailures(t *testing.T) {
	backend, engine, sub := setup(domain.ModeAbsolute, "P1")
	r1 := scan(t, engine, "P1")

	// Commit succeeds, then the lookup service goes away.
	backend.failLookupsAfterCommit = fmt.Errorf("connection reset")

	out, err := sub.Commit(context.Background(), engine.Store(), domain.CommitContext{
		Kind: domain.CommitStockCorrection, WarehouseID: "WH1",
	})

	require.NoError(t, err, "the commit happened")
	assert.Empty(t, out.Refreshed)
	assert.Contains(t, out.RefreshErrors, r1.ID)
}

func TestCommit_AlreadySubmitting(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1")
	scan(t, engine, "P1")
	backend.commitStarted = make(chan struct{}, 1)
	backend.commitGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := engine.Commit(context.Background(), sub, orderContext())
		done <- err
	}()
	<-backend.commitStarted
	assert.Equal(t, domain.StateSubmitting, engine.State())

	_, err := engine.Commit(context.Background(), sub, orderContext())
	assert.True(t, errors.Is(err, errors.ErrAlreadySubmitting))
	assert.Equal(t, domain.StateSubmitting, engine.State())

	close(backend.commitGate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, backend.batchCount())
	assert.Equal(t, domain.StateIdle, engine.State())
	assert.False(t, engine.Store().Submitting())
}

func TestCommit_ScansMergedDuringCommitSurvive(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1", "P2")
	r1 := scan(t, engine, "P1")
	scan(t, engine, "P1")
	backend.commitStarted = make(chan struct{}, 1)
	backend.commitGate = make(chan struct{})

	done := make(chan *domain.CommitOutcome, 1)
	go func() {
		out, _ := sub.Commit(context.Background(), engine.Store(), orderContext())
		done <- out
	}()
	<-backend.commitStarted

	scan(t, engine, "P1")
	r2 := scan(t, engine, "P2")

	close(backend.commitGate)
	out := <-done
	require.NotNil(t, out)

	require.Len(t, backend.batches, 1)
	assert.Equal(t, []domain.CommitLine{{ProductID: "P1", Quantity: 2, Barcode: "BC-P1"}}, backend.batches[0].Lines)
	assert.False(t, out.Cleared)

	rows := engine.Store().All()
	require.Len(t, rows, 2)
	assert.Equal(t, r1.ID, rows[0].ID)
	assert.Equal(t, 1, rows[0].Quantity, "only the quantity sent is taken off")
	assert.Equal(t, r2.ID, rows[1].ID)
	assert.Equal(t, 1, rows[1].Quantity)
}

func TestCommit_RejectsRowsFromAnotherWarehouse(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1", "P2")
	scan(t, engine, "P2")
	backend.mu.Lock()
	backend.stock["P1"].WarehouseID = "WH2"
	backend.mu.Unlock()
	_, err := engine.LookupAndMerge(context.Background(), "BC-P1", "WH2")
	require.NoError(t, err)

	_, err = sub.Commit(context.Background(), engine.Store(), orderContext())

	assert.True(t, errors.Is(err, errors.ErrMissingContext))
	assert.Contains(t, err.Error(), "WH2")
	assert.Equal(t, 0, backend.batchCount())
	assert.Equal(t, 2, engine.Store().Len())
	assert.False(t, engine.Store().Submitting())
}

func TestEngineCommit_FailureReturnsToEditing(t *testing.T) {
	backend, engine, sub := setup(domain.ModeIncrement, "P1")
	scan(t, engine, "P1")
	backend.commitErr = errors.CommitFailed("backend rejected the batch", nil)

	_, err := engine.Commit(context.Background(), sub, orderContext())

	require.Error(t, err)
	assert.Equal(t, domain.StateEditing, engine.State())
	assert.False(t, engine.Store().Submitting())
}
