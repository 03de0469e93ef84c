// Package errors provides structured error types for the benchmark harness.
// Every error carries a category, code, message and retryable flag so that
// the CLI can report failures uniformly. Failures reported by engines are not
// Go errors; they travel as ErrorWhenEvaluatingExpression values.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by harness component.
type ErrorCategory string

const (
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryDataset  ErrorCategory = "DATASET"
	ErrCategoryEngine   ErrorCategory = "ENGINE"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryResults  ErrorCategory = "RESULTS"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeUnknownEngine = "UNKNOWN_ENGINE"
	CodeNoEngines     = "NO_ENGINES"

	// Dataset codes
	CodeMissingTable = "MISSING_TABLE"
	CodeGenerate     = "GENERATE_FAILED"
	CodeDDLFailed    = "DDL_FAILED"

	// Engine codes
	CodeEngineInit  = "ENGINE_INIT"
	CodeEngineClose = "ENGINE_CLOSE"
	CodeReentrant   = "REENTRANT_CALL"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Results codes
	CodeCatalogOpen  = "CATALOG_OPEN"
	CodeCatalogWrite = "CATALOG_WRITE"
	CodeExportFailed = "EXPORT_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// BenchError is the structured error type used throughout the harness.
type BenchError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *BenchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *BenchError) Is(target error) bool {
	var t *BenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new BenchError.
func New(category ErrorCategory, code, message string) *BenchError {
	return &BenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new BenchError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *BenchError {
	return &BenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *BenchError) WithDetails(details map[string]interface{}) *BenchError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCategory(err error) ErrorCategory {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCode(err error) string {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Fields flattens the classification of err into log fields. Errors that
// are not BenchErrors yield an empty map.
func Fields(err error) map[string]interface{} {
	fields := make(map[string]interface{})
	var be *BenchError
	if !errors.As(err, &be) {
		return fields
	}
	for k, v := range be.Details {
		fields[k] = v
	}
	fields["category"] = string(GetCategory(err))
	fields["code"] = GetCode(err)
	fields["retryable"] = IsRetryable(err)
	return fields
}

// Only transfers to and from object storage are worth retrying.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewConfigError(code, message string) *BenchError {
	return New(ErrCategoryConfig, code, message)
}

func NewDatasetError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryDataset, code, message, cause)
}

func NewEngineError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryEngine, code, message, cause)
}

func NewStorageError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewResultsError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryResults, code, message, cause)
}

func NewInternalError(message string, cause error) *BenchError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
