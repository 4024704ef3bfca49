package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Reconciliation error kinds. Compare with errors.Is against the AppError returned
// by the engine, the submitter or the collaborator clients.
var (
	ErrMissingSelection  = errors.New("missing selection")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrImmutableField    = errors.New("immutable field")
	ErrEmptyBatch        = errors.New("empty batch")
	ErrNoValidLines      = errors.New("no valid lines")
	ErrMissingContext    = errors.New("missing context")
	ErrCommitFailed      = errors.New("commit failed")
	ErrAlreadySubmitting = errors.New("already submitting")
	ErrLookupFailed      = errors.New("lookup failed")
	ErrValidation        = errors.New("validation error")
	ErrBadRequest        = errors.New("bad request")
	ErrConflict          = errors.New("resource conflict")
	ErrInternal          = errors.New("internal server error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Reconciliation constructors

// MissingSelection is returned before any remote call when the barcode,
// warehouse or target row is absent.
func MissingSelection(message string) *AppError {
	return &AppError{
		Err:        ErrMissingSelection,
		Code:       "MISSING_SELECTION",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// NotFoundMessage keeps a collaborator-supplied message as is.
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func InvalidQuantity(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func ImmutableField(field string) *AppError {
	return &AppError{
		Err:        ErrImmutableField,
		Code:       "IMMUTABLE_FIELD",
		Message:    fmt.Sprintf("field %q cannot be edited", field),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func EmptyBatch() *AppError {
	return &AppError{
		Err:        ErrEmptyBatch,
		Code:       "EMPTY_BATCH",
		Message:    "no line items to submit",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NoValidLines() *AppError {
	return &AppError{
		Err:        ErrNoValidLines,
		Code:       "NO_VALID_LINES",
		Message:    "all line quantities are zero or invalid",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func MissingContext(message string) *AppError {
	return &AppError{
		Err:        ErrMissingContext,
		Code:       "MISSING_CONTEXT",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// CommitFailed carries the collaborator's message verbatim. An empty message
// falls back to a generic one.
func CommitFailed(message string, cause error) *AppError {
	if message == "" {
		message = "the transaction could not be committed"
	}
	return &AppError{
		Err:        joinCause(ErrCommitFailed, cause),
		Code:       "COMMIT_FAILED",
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

func AlreadySubmitting() *AppError {
	return &AppError{
		Err:        ErrAlreadySubmitting,
		Code:       "ALREADY_SUBMITTING",
		Message:    "a submission for this session is still in progress",
		StatusCode: http.StatusConflict,
	}
}

func LookupFailed(message string, cause error) *AppError {
	if message == "" {
		message = "the lookup service could not be reached"
	}
	return &AppError{
		Err:        joinCause(ErrLookupFailed, cause),
		Code:       "LOOKUP_FAILED",
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

// Transport constructors

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// FromCode rebuilds an AppError received over the wire from its code.
// Unknown codes map to fallback.
func FromCode(code, message string, fallback func(string) *AppError) *AppError {
	switch code {
	case "MISSING_SELECTION":
		return MissingSelection(message)
	case "NOT_FOUND":
		return NotFoundMessage(message)
	case "INVALID_QUANTITY":
		return InvalidQuantity(message)
	case "MISSING_CONTEXT":
		return MissingContext(message)
	case "VALIDATION_ERROR", "BAD_REQUEST":
		e := BadRequest(message)
		e.Err = ErrValidation
		e.Code = "VALIDATION_ERROR"
		return e
	case "CONFLICT":
		return Conflict(message)
	}
	return fallback(message)
}

func joinCause(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code returns the AppError code of err, or "" when err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
