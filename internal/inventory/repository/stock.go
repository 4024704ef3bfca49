package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockscan/stockscan-backend/pkg/database"
	"github.com/stockscan/stockscan-backend/pkg/errors"
)

// InventoryRepository applies stock movements
type InventoryRepository struct {
	db *database.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *database.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// ApplyBatch records the batch as one transaction and moves stock for every
// line. Each touched row keeps its pre-batch quantity as previous_quantity.
// Quote batches record lines without moving stock. Any failing line rolls the
// whole batch back.
func (r *InventoryRepository) ApplyBatch(ctx context.Context, batch Batch) (*Transaction, error) {
	txn := &Transaction{
		ID:              uuid.New().String(),
		BatchID:         nullable(batch.BatchID),
		TransactionType: batch.TransactionType,
		WarehouseID:     batch.WarehouseID,
		AccountID:       nullable(batch.AccountID),
		SourceDoc:       nullable(batch.SourceDoc),
	}

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		for _, line := range batch.Lines {
			inv, err := lockInventory(ctx, tx,
				`SELECT id, product_id, warehouse_id, current_quantity, previous_quantity, qty_per_pack, updated_at
				 FROM inventory WHERE product_id = $1 AND warehouse_id = $2 FOR UPDATE`,
				line.ProductID, batch.WarehouseID)
			if err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					return errors.NotFoundMessage(fmt.Sprintf("product %s is not stocked in this warehouse", line.ProductID))
				}
				return err
			}

			newQty, err := nextQuantity(batch.TransactionType, inv.CurrentQuantity, line.Quantity)
			if err != nil {
				return err
			}

			tl := TransactionLine{
				ID:               uuid.New().String(),
				TransactionID:    txn.ID,
				ProductID:        line.ProductID,
				InventoryID:      inv.ID,
				Quantity:         line.Quantity,
				PreviousQuantity: inv.CurrentQuantity,
				NewQuantity:      newQty,
				Barcode:          nullable(line.Barcode),
			}

			if batch.TransactionType != TransactionQuote {
				if err := moveStock(ctx, tx, inv.ID, newQty); err != nil {
					return err
				}
			}
			if err := insertLine(ctx, tx, tl); err != nil {
				return err
			}
			txn.Lines = append(txn.Lines, tl)
		}
		return nil
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return txn, nil
}

// SetQuantity sets one inventory row to an absolute quantity and records it
// as a single-line Adjustment transaction.
func (r *InventoryRepository) SetQuantity(ctx context.Context, inventoryID string, quantity int, sourceDoc string) (*Transaction, error) {
	if quantity < 0 {
		return nil, errors.InvalidQuantity("quantity must be a non-negative integer")
	}

	var txn *Transaction
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		inv, err := lockInventory(ctx, tx,
			`SELECT id, product_id, warehouse_id, current_quantity, previous_quantity, qty_per_pack, updated_at
			 FROM inventory WHERE id = $1 FOR UPDATE`,
			inventoryID)
		if err != nil {
			return err
		}

		txn = &Transaction{
			ID:              uuid.New().String(),
			TransactionType: TransactionAdjustment,
			WarehouseID:     inv.WarehouseID,
			SourceDoc:       nullable(sourceDoc),
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		if err := moveStock(ctx, tx, inv.ID, quantity); err != nil {
			return err
		}

		tl := TransactionLine{
			ID:               uuid.New().String(),
			TransactionID:    txn.ID,
			ProductID:        inv.ProductID,
			InventoryID:      inv.ID,
			Quantity:         quantity,
			PreviousQuantity: inv.CurrentQuantity,
			NewQuantity:      quantity,
		}
		if err := insertLine(ctx, tx, tl); err != nil {
			return err
		}
		txn.Lines = []TransactionLine{tl}
		return nil
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	return txn, nil
}

func nextQuantity(txType string, current, quantity int) (int, error) {
	switch txType {
	case TransactionIn:
		return current + quantity, nil
	case TransactionOut:
		if current < quantity {
			return 0, errors.Conflict(fmt.Sprintf("insufficient stock: %d available, %d requested", current, quantity))
		}
		return current - quantity, nil
	case TransactionAdjustment:
		return quantity, nil
	case TransactionQuote:
		return current, nil
	}
	return 0, errors.Validation(map[string]string{
		"transaction_type": "must be one of: In, Out, Adjustment, Quote",
	})
}

func lockInventory(ctx context.Context, tx *sqlx.Tx, query string, args ...any) (*Inventory, error) {
	var inv Inventory
	err := tx.GetContext(ctx, &inv, query, args...)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("inventory record")
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func moveStock(ctx context.Context, tx *sqlx.Tx, inventoryID string, quantity int) error {
	query := `
		UPDATE inventory
		SET previous_quantity = current_quantity, current_quantity = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, inventoryID, quantity)
	return err
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, txn *Transaction) error {
	query := `
		INSERT INTO inventory_transactions (id, batch_id, transaction_type, warehouse_id, account_id, source_doc)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return tx.QueryRowxContext(ctx, query,
		txn.ID, txn.BatchID, txn.TransactionType, txn.WarehouseID, txn.AccountID, txn.SourceDoc,
	).Scan(&txn.CreatedAt)
}

func insertLine(ctx context.Context, tx *sqlx.Tx, tl TransactionLine) error {
	query := `
		INSERT INTO inventory_transaction_lines (
			id, transaction_id, product_id, inventory_id, quantity, previous_quantity, new_quantity, barcode
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		tl.ID, tl.TransactionID, tl.ProductID, tl.InventoryID, tl.Quantity,
		tl.PreviousQuantity, tl.NewQuantity, tl.Barcode,
	)
	return err
}
