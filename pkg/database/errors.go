package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"github.com/stockscan/stockscan-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Invalid text representation (22P02), e.g. a malformed uuid
	case "22P02":
		return errors.BadRequest("invalid identifier format")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_nonnegative"):
		return errors.Conflict("stock cannot go below zero")

	case strings.Contains(constraint, "qty_per_pack_positive"):
		return errors.Validation(map[string]string{
			"qty_per_pack": "must be greater than 0",
		})

	case strings.Contains(constraint, "transaction_type_valid"):
		return errors.Validation(map[string]string{
			"transaction_type": "must be one of: In, Out, Adjustment, Quote",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "sku"):
		return "a product with this SKU already exists"
	case strings.Contains(constraint, "barcode"):
		return "a product with this barcode already exists"
	case strings.Contains(constraint, "batch_id"):
		return "this batch was already submitted"
	case strings.Contains(constraint, "warehouse_product"):
		return "this product is already stocked in the warehouse"
	default:
		return "a record with these values already exists"
	}
}
