package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestPartwiseError_Error(t *testing.T) {
	err := New(ErrCategoryCatalog, CodeInvalidBoundExpression, "bad bound")
	expected := "[CATALOG:INVALID_BOUND_EXPRESSION] bad bound"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestPartwiseError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeUploadFailed, "upload failed", cause)
	expected := "[STORAGE:UPLOAD_FAILED] upload failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestPartwiseError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryManifest, CodeWriteConflict, "conflict", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestPartwiseError_Is(t *testing.T) {
	err1 := New(ErrCategoryCatalog, CodeInvalidBoundExpression, "first")
	err2 := New(ErrCategoryCatalog, CodeInvalidBoundExpression, "second")
	err3 := New(ErrCategoryCatalog, CodeInvalidPartitionKey, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}

	wrapped := fmt.Errorf("catalog: %w", err1)
	if !errors.Is(wrapped, New(ErrCategoryCatalog, CodeInvalidBoundExpression, "")) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryManifest, CodeWriteConflict, true},
		{ErrCategoryManifest, CodePlanNotFound, false},
		{ErrCategoryCatalog, CodeInvalidBoundExpression, false},
		{ErrCategoryCatalog, CodeIntrospectionFailed, false},
		{ErrCategoryValidation, CodeInvalidStrategy, false},
		{ErrCategoryPlan, CodeNoTables, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewCatalogError(CodeInvalidBoundExpression, "bad bound", nil)
	if GetCategory(err) != ErrCategoryCatalog {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryCatalog)
	}
	if GetCode(err) != CodeInvalidBoundExpression {
		t.Errorf("got %q, want %q", GetCode(err), CodeInvalidBoundExpression)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-PartwiseError should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-PartwiseError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryCatalog, CodeInvalidBoundExpression, "bad bound")
	detailed := err.WithDetails(map[string]interface{}{"partition": "events_y2023"})

	if detailed.Details["partition"] != "events_y2023" {
		t.Error("WithDetails should set details")
	}
	if GetDetails(detailed)["partition"] != "events_y2023" {
		t.Error("GetDetails should return details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewValidationError(CodeEmptyPartitionBy, "no columns")
	if v.Category != ErrCategoryValidation || v.Code != CodeEmptyPartitionBy {
		t.Error("NewValidationError mismatch")
	}

	c := NewCatalogError(CodeIntrospectionFailed, "query failed", cause)
	if c.Category != ErrCategoryCatalog || !errors.Is(c, cause) {
		t.Error("NewCatalogError mismatch")
	}

	s := NewStorageError(CodeUploadFailed, "s3 down", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	m := NewManifestError(CodeWriteConflict, "locked", cause)
	if m.Category != ErrCategoryManifest {
		t.Error("NewManifestError mismatch")
	}

	p := NewPlanError(CodeNoTables, "nothing to plan")
	if p.Category != ErrCategoryPlan {
		t.Error("NewPlanError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
