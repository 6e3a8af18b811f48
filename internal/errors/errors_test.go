package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/tabletpruner/partitionpruner/internal/storage"
)

func TestPrunerError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeUploadFailed, "upload failed")
	expected := "[STORAGE:UPLOAD_FAILED] upload failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestPrunerError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeUploadFailed, "upload failed", cause)
	expected := "[STORAGE:UPLOAD_FAILED] upload failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestPrunerError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryCatalog, CodeWriteConflict, "conflict", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestPrunerError_Is(t *testing.T) {
	err1 := New(ErrCategoryStorage, CodeUploadFailed, "first")
	err2 := New(ErrCategoryStorage, CodeUploadFailed, "second")
	err3 := New(ErrCategoryStorage, CodeDownloadFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestPrunerError_Is_MatchesCauseSentinel(t *testing.T) {
	// A caller that only knows about storage.ErrObjectNotFound, not this
	// package's wrapping, should still be able to use errors.Is against
	// the catalog's wrapped error.
	wrapped := Wrap(ErrCategoryStorage, CodeDownloadFailed, "download failed", storage.ErrObjectNotFound)
	if !errors.Is(wrapped, storage.ErrObjectNotFound) {
		t.Error("errors.Is should see through to the wrapped storage sentinel")
	}
	if errors.Is(wrapped, storage.ErrUploadFailed) {
		t.Error("errors.Is should not match an unrelated sentinel")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		cause     error
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, nil, true},
		{ErrCategoryStorage, CodeDownloadFailed, nil, true},
		{ErrCategoryStorage, CodeObjectNotFound, nil, false},
		{ErrCategoryStorage, CodeChecksumMismatch, nil, true},
		{ErrCategoryCatalog, CodeWriteConflict, nil, true},
		{ErrCategoryCatalog, CodeCorruptSnapshot, nil, false},
		{ErrCategoryValidation, CodeInvalidSchema, nil, false},
		{ErrCategoryPruning, CodeUnknownColumn, nil, false},
		{ErrCategoryInternal, CodeUnexpected, nil, false},
	}

	for _, tt := range tests {
		err := Wrap(tt.category, tt.code, "test", tt.cause)
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestIsRetryable_ObjectNotFoundOverridesNominallyRetryableCode(t *testing.T) {
	// CodeDownloadFailed is nominally retryable, but if the cause is a
	// confirmed storage.ErrObjectNotFound, retrying buys nothing.
	err := NewStorageError(CodeDownloadFailed, "failed to download catalog snapshot", storage.ErrObjectNotFound)
	if err.Retryable {
		t.Error("a download failure caused by ErrObjectNotFound should not be retryable")
	}

	// The same code with an ordinary transient cause stays retryable.
	err2 := NewStorageError(CodeDownloadFailed, "failed to download catalog snapshot", fmt.Errorf("connection reset"))
	if !err2.Retryable {
		t.Error("a transient download failure should remain retryable")
	}
}

func TestPrunerError_ChecksumMismatchIsDistinctFromObjectNotFound(t *testing.T) {
	mismatch := NewStorageError(CodeChecksumMismatch, "snapshot failed checksum verification", storage.ErrChecksumMismatch)
	if !mismatch.Retryable {
		t.Error("a checksum mismatch is a transport fault, not a missing object, and should be retryable")
	}
	if errors.Is(mismatch, storage.ErrObjectNotFound) {
		t.Error("a checksum-mismatch error should not match the object-not-found sentinel")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError(CodeInvalidPredicate, "bad"), http.StatusBadRequest},
		{"catalog not found", NewCatalogError(CodeSchemaNotFound, "missing", nil), http.StatusNotFound},
		{"catalog write conflict", NewCatalogError(CodeWriteConflict, "locked", nil), http.StatusConflict},
		{"pruning", NewPruningError(CodeUnknownColumn, "no such column"), http.StatusUnprocessableEntity},
		{"storage retryable", NewStorageError(CodeUploadFailed, "down", fmt.Errorf("timeout")), http.StatusServiceUnavailable},
		{"storage not retryable", NewStorageError(CodeDownloadFailed, "gone", storage.ErrObjectNotFound), http.StatusInternalServerError},
		{"internal", NewInternalError("oops", nil), http.StatusInternalServerError},
		{"non-PrunerError", fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("%s: StatusCode got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryPruning, CodeUnknownColumn, "no such column")
	if GetCategory(err) != ErrCategoryPruning {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryPruning)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-PrunerError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryPruning, CodeUnknownColumn, "no such column")
	if GetCode(err) != CodeUnknownColumn {
		t.Errorf("got %q, want %q", GetCode(err), CodeUnknownColumn)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-PrunerError should return empty code")
	}
}

func TestGetDetails(t *testing.T) {
	err := New(ErrCategoryPruning, CodeUnknownColumn, "no such column").
		WithDetails(map[string]interface{}{"column_id": int32(7)})

	details := GetDetails(err)
	if details["column_id"] != int32(7) {
		t.Error("GetDetails should surface the attached details map")
	}
	if GetDetails(fmt.Errorf("plain error")) != nil {
		t.Error("non-PrunerError should return nil details")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryValidation, CodeInvalidSchema, "bad schema")
	detailed := err.WithDetails(map[string]interface{}{"field": "table_id"})

	if detailed.Details["field"] != "table_id" {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewValidationError(CodeInvalidPredicate, "bad predicate")
	if v.Category != ErrCategoryValidation || v.Code != CodeInvalidPredicate {
		t.Error("NewValidationError mismatch")
	}

	s := NewStorageError(CodeUploadFailed, "s3 down", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	c := NewCatalogError(CodeWriteConflict, "locked", cause)
	if c.Category != ErrCategoryCatalog {
		t.Error("NewCatalogError mismatch")
	}

	p := NewPruningError(CodeUnknownColumn, "no such column")
	if p.Category != ErrCategoryPruning {
		t.Error("NewPruningError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
