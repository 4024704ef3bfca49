package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/stockscan/stockscan-backend/internal/scan/domain"
	"github.com/stockscan/stockscan-backend/internal/scan/store"
	"github.com/stockscan/stockscan-backend/pkg/errors"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

// Submitter turns a store into one batch transaction. It holds no state
// between calls; the in-flight guard lives on the store.
type Submitter struct {
	committer Committer
	refresher Refresher
	logger    *logger.Logger
}

// NewSubmitter creates a submitter. refresher re-resolves committed rows of
// absolute-mode stores.
func NewSubmitter(committer Committer, refresher Refresher, log *logger.Logger) *Submitter {
	return &Submitter{
		committer: committer,
		refresher: refresher,
		logger:    log,
	}
}

// Commit sends every row with a positive quantity as one batch. The remote call
// is made exactly once. Rows scanned in another warehouse than cc names fail
// the commit before anything is sent. On failure the store is left as it was
// and the collaborator's message is returned verbatim. On success an
// increment-mode store has the sent quantities taken off, so scans merged while
// the call was in flight stay, and an absolute-mode store has each committed
// row refreshed from the backend.
func (s *Submitter) Commit(ctx context.Context, st *store.Store, cc domain.CommitContext) (*domain.CommitOutcome, error) {
	if !st.TryBeginSubmit() {
		return nil, errors.AlreadySubmitting()
	}
	defer st.EndSubmit()

	rows := st.All()
	if len(rows) == 0 {
		return nil, errors.EmptyBatch()
	}

	cc.WarehouseID = strings.TrimSpace(cc.WarehouseID)
	cc.AccountID = strings.TrimSpace(cc.AccountID)
	if cc.WarehouseID == "" {
		return nil, errors.MissingContext("a warehouse must be selected before submitting")
	}
	if cc.Kind.RequiresAccount() && cc.AccountID == "" {
		return nil, errors.MissingContext("an account must be selected before submitting")
	}
	if cc.TransactionType == "" {
		cc.TransactionType = cc.Kind.DefaultTransactionType()
	}
	if !cc.TransactionType.Valid() {
		return nil, errors.MissingContext("unknown transaction type " + string(cc.TransactionType))
	}

	batch := domain.Batch{
		BatchID:         uuid.New().String(),
		WarehouseID:     cc.WarehouseID,
		AccountID:       cc.AccountID,
		TransactionType: cc.TransactionType,
	}
	committed := make([]int64, 0, len(rows))
	sent := make(map[int64]int, len(rows))
	for _, row := range rows {
		if row.Quantity <= 0 {
			continue
		}
		if row.WarehouseID != "" && row.WarehouseID != cc.WarehouseID {
			return nil, errors.MissingContext("line " + row.SKU + " was scanned in warehouse " + row.WarehouseID + ", not " + cc.WarehouseID)
		}
		batch.Lines = append(batch.Lines, domain.CommitLine{
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			Barcode:   row.Barcode,
		})
		committed = append(committed, row.ID)
		sent[row.ID] = row.Quantity
	}
	if len(batch.Lines) == 0 {
		return nil, errors.NoValidLines()
	}

	log := s.logger.With().
		Str("batch_id", batch.BatchID).
		Str("warehouse_id", batch.WarehouseID).
		Str("transaction_type", string(batch.TransactionType)).
		Logger()

	ack, err := s.committer.CommitBatch(ctx, batch)
	if err != nil {
		log.Warn().Err(err).Int("lines", len(batch.Lines)).Msg("batch commit failed")
		return nil, asCommitError(err)
	}

	outcome := &domain.CommitOutcome{
		BatchID:   batch.BatchID,
		Committed: len(batch.Lines),
	}
	if ack != nil {
		outcome.TransactionID = ack.TransactionID
	}

	log.Info().
		Str("transaction_id", outcome.TransactionID).
		Int("lines", outcome.Committed).
		Int("skipped", len(rows)-outcome.Committed).
		Msg("batch committed")

	if st.Mode() == domain.ModeIncrement {
		st.Settle(sent)
		outcome.Cleared = st.Len() == 0
		return outcome, nil
	}

	for _, id := range committed {
		row, err := s.refresher.RefreshAfterCommit(ctx, id)
		if err != nil {
			if outcome.RefreshErrors == nil {
				outcome.RefreshErrors = make(map[int64]string)
			}
			outcome.RefreshErrors[id] = errorMessage(err)
			log.Warn().Err(err).Int64("line_id", id).Msg("post-commit refresh failed")
			continue
		}
		outcome.Refreshed = append(outcome.Refreshed, row)
	}

	return outcome, nil
}

func errorMessage(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
