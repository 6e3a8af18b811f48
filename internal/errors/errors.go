// Package errors provides structured error types for the partition pruner
// service. All errors include a category, code, message, and retryable flag
// for consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tabletpruner/partitionpruner/internal/storage"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryPruning    ErrorCategory = "PRUNING"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes: a plan request's shape or values are unusable
	// before the pruner ever runs.
	CodeInvalidSchema      = "INVALID_SCHEMA"
	CodeInvalidPredicate   = "INVALID_PREDICATE"
	CodeInvalidColumnValue = "INVALID_COLUMN_VALUE"

	// Catalog codes.
	CodeSchemaNotFound  = "SCHEMA_NOT_FOUND"
	CodeWriteConflict   = "WRITE_CONFLICT"
	CodeCorruptSnapshot = "CORRUPT_SNAPSHOT"

	// Storage codes.
	CodeUploadFailed     = "UPLOAD_FAILED"
	CodeDownloadFailed   = "DOWNLOAD_FAILED"
	CodeObjectNotFound   = "OBJECT_NOT_FOUND"
	CodeDeleteFailed     = "DELETE_FAILED"
	CodeChecksumMismatch = "CHECKSUM_MISMATCH"

	// Pruning codes: §7's "programmer error" failures — the pruner was
	// handed input ScanSpec::Optimize should already have made impossible.
	CodeUnknownColumn = "UNKNOWN_COLUMN"

	// Internal codes.
	CodeUnexpected = "UNEXPECTED"
)

// PrunerError is the structured error type used throughout the system.
type PrunerError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PrunerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PrunerError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two PrunerErrors match by
// category and code. A plain sentinel (e.g. storage.ErrObjectNotFound)
// matches if it appears anywhere in this error's cause chain — so a caller that only knows
// about the storage layer's sentinels, not this package's wrapping, can
// still use errors.Is against a wrapped *PrunerError.
func (e *PrunerError) Is(target error) bool {
	var t *PrunerError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return errors.Is(e.Cause, target)
}

// New creates a new PrunerError.
func New(category ErrorCategory, code, message string) *PrunerError {
	return &PrunerError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code, nil),
	}
}

// Wrap creates a new PrunerError wrapping an existing error. Retryability
// is derived from category and code, then overridden by what's actually
// known about cause — see isRetryable.
func Wrap(category ErrorCategory, code, message string, cause error) *PrunerError {
	return &PrunerError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code, cause),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PrunerError) WithDetails(details map[string]interface{}) *PrunerError {
	cp := *e
	cp.Details = details
	return &cp
}

// StatusCode returns the HTTP status the plan API should return for e. Only
// a *PrunerError carries enough information to pick a status more specific
// than 500; a bare error (a bug that escaped categorization) is always an
// internal error.
func (e *PrunerError) StatusCode() int {
	switch e.Category {
	case ErrCategoryValidation:
		return http.StatusBadRequest
	case ErrCategoryCatalog:
		if e.Code == CodeSchemaNotFound {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case ErrCategoryPruning:
		// A hard failure per §7: the caller violated an invariant
		// ScanSpec::Optimize was supposed to have already enforced.
		return http.StatusUnprocessableEntity
	case ErrCategoryStorage:
		if e.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PrunerError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PrunerError.
func GetCategory(err error) ErrorCategory {
	var pe *PrunerError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PrunerError.
func GetCode(err error) string {
	var pe *PrunerError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// GetDetails extracts the structured details attached to an error chain, if
// any. Used by the plan API to surface things like the offending column id
// without parsing the error string.
func GetDetails(err error) map[string]interface{} {
	var pe *PrunerError
	if errors.As(err, &pe) {
		return pe.Details
	}
	return nil
}

// StatusCode extracts the HTTP status the plan API should return for err.
// A non-PrunerError (a bug that escaped categorization on its way up)
// always maps to 500.
func StatusCode(err error) int {
	var pe *PrunerError
	if errors.As(err, &pe) {
		return pe.StatusCode()
	}
	return http.StatusInternalServerError
}

// isRetryable determines whether an error is worth retrying. Category and
// code give the default for the failure mode they name, but the cause can
// override it: a storage operation that failed because the object
// genuinely isn't there (storage.ErrObjectNotFound) won't succeed on retry
// no matter how generally retryable its code is, since retrying doesn't
// change whether the object exists.
func isRetryable(category ErrorCategory, code string, cause error) bool {
	if errors.Is(cause, storage.ErrObjectNotFound) {
		return false
	}

	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeChecksumMismatch:
		// A transfer that arrived corrupted is worth re-fetching; nothing
		// about the object itself is wrong, unlike ErrObjectNotFound above.
		return true
	case category == ErrCategoryCatalog && code == CodeWriteConflict:
		// SQLite under WAL mode reports a write conflict when a concurrent
		// writer holds the lock; the write itself is safe to retry.
		return true
	default:
		// Pruning-category failures are never retryable: they are
		// programmer errors per §7, not transient conditions.
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *PrunerError {
	return New(ErrCategoryValidation, code, message)
}

func NewCatalogError(code, message string, cause error) *PrunerError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewStorageError(code, message string, cause error) *PrunerError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewPruningError(code, message string) *PrunerError {
	return New(ErrCategoryPruning, code, message)
}

func NewInternalError(message string, cause error) *PrunerError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
