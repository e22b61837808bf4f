// Package errors provides structured error types for Partwise.
// All errors include a category, code, message, and retryable flag so that
// callers (the CLI, the gRPC service, an outer migration runner) can decide
// how to react without parsing messages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryManifest   ErrorCategory = "MANIFEST"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryPlan       ErrorCategory = "PLAN"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidStrategy  = "INVALID_STRATEGY"
	CodeEmptyPartitionBy = "EMPTY_PARTITION_KEY"
	CodeInvalidTableName = "INVALID_TABLE_NAME"
	CodeInvalidLiteral   = "INVALID_LITERAL"

	// Catalog codes
	CodeInvalidBoundExpression = "INVALID_BOUND_EXPRESSION"
	CodeInvalidPartitionKey    = "INVALID_PARTITION_KEY"
	CodeIntrospectionFailed    = "INTROSPECTION_FAILED"

	// Manifest codes
	CodeWriteConflict = "WRITE_CONFLICT"
	CodePlanNotFound  = "PLAN_NOT_FOUND"
	CodeDuplicatePlan = "DUPLICATE_PLAN"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Plan codes
	CodeNoTables = "NO_TABLES"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PartwiseError is the structured error type used throughout the system.
type PartwiseError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PartwiseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PartwiseError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PartwiseError) Is(target error) bool {
	var t *PartwiseError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PartwiseError.
func New(category ErrorCategory, code, message string) *PartwiseError {
	return &PartwiseError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PartwiseError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PartwiseError {
	return &PartwiseError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PartwiseError) WithDetails(details map[string]interface{}) *PartwiseError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PartwiseError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PartwiseError.
func GetCategory(err error) ErrorCategory {
	var pe *PartwiseError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PartwiseError.
func GetCode(err error) string {
	var pe *PartwiseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// GetDetails extracts the details map from an error chain.
func GetDetails(err error) map[string]interface{} {
	var pe *PartwiseError
	if errors.As(err, &pe) {
		return pe.Details
	}
	return nil
}

// isRetryable determines if an error code is retryable. Catalog failures are
// never retryable here; retrying a row fetch belongs to the connection layer.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryManifest && code == CodeWriteConflict:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *PartwiseError {
	return New(ErrCategoryValidation, code, message)
}

func NewCatalogError(code, message string, cause error) *PartwiseError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewManifestError(code, message string, cause error) *PartwiseError {
	return Wrap(ErrCategoryManifest, code, message, cause)
}

func NewStorageError(code, message string, cause error) *PartwiseError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewPlanError(code, message string) *PartwiseError {
	return New(ErrCategoryPlan, code, message)
}

func NewInternalError(message string, cause error) *PartwiseError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
