// Package cacheerr provides a structured error system for the caching
// subsystem with error codes, categories, and context.
package cacheerr

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

const (
	// Source data errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeStale    ErrorCode = "STALE_SOURCE"

	// Capacity errors
	ErrCodeTooLarge ErrorCode = "TOO_LARGE"

	// Storage errors
	ErrCodeIOFailure     ErrorCode = "IO_FAILURE"
	ErrCodeStorageRead   ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite  ErrorCode = "STORAGE_WRITE"
	ErrCodeExpired       ErrorCode = "EXPIRED"
	ErrCodeCorruptRecord ErrorCode = "CORRUPT_RECORD"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Operation errors
	ErrCodeOperationTimeout ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeClosed           ErrorCode = "CLOSED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategorySource        ErrorCategory = "source"
	CategoryCapacity      ErrorCategory = "capacity"
	CategoryStorage       ErrorCategory = "storage"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryOperation     ErrorCategory = "operation"
)

// Error represents a structured cache error with context and metadata.
type Error struct {
	Code      ErrorCode              `json:"code"`
	Category  ErrorCategory          `json:"category"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Component string                 `json:"component,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Cause     error                  `json:"-"`
	Timestamp time.Time              `json:"timestamp"`

	// Degradable errors are treated as a cache miss by read paths rather
	// than surfaced to the caller.
	Degradable bool `json:"degradable"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so sentinel comparison works across wrapping.
func (e *Error) Is(target error) bool {
	if other, ok := target.(*Error); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed representation for logging.
func (e *Error) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("CacheError{%s}", strings.Join(parts, ", "))
}

// New creates a new structured error with defaults derived from the code.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Degradable: IsDegradableByDefault(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeNotFound, ErrCodeStale:
		return CategorySource
	case ErrCodeTooLarge:
		return CategoryCapacity
	case ErrCodeIOFailure, ErrCodeStorageRead, ErrCodeStorageWrite,
		ErrCodeExpired, ErrCodeCorruptRecord:
		return CategoryStorage
	case ErrCodeInvalidConfig:
		return CategoryConfiguration
	default:
		return CategoryOperation
	}
}

// IsDegradableByDefault reports whether read paths treat the error as a
// cache miss instead of propagating it. Only source-file problems
// (NotFound, Stale) surface to callers.
func IsDegradableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeExpired, ErrCodeCorruptRecord, ErrCodeStorageRead,
		ErrCodeStorageWrite, ErrCodeOperationTimeout:
		return true
	}
	return false
}

// WithComponent sets the component for an error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail adds detailed information to an error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinel errors for errors.Is comparisons. Matching is by code, so a
// fully-populated *Error compares equal to its sentinel.
var (
	ErrNotFound      = New(ErrCodeNotFound, "source not found")
	ErrStale         = New(ErrCodeStale, "source changed since open")
	ErrTooLarge      = New(ErrCodeTooLarge, "value exceeds cache capacity")
	ErrIOFailure     = New(ErrCodeIOFailure, "i/o failure")
	ErrExpired       = New(ErrCodeExpired, "record expired")
	ErrCorruptRecord = New(ErrCodeCorruptRecord, "record corrupt")
	ErrClosed        = New(ErrCodeClosed, "cache closed")
)

// NotFound builds a NOT_FOUND error for the given path.
func NotFound(component, path string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("no such file: %s", path)).
		WithComponent(component).
		WithDetail("path", path)
}

// Stale builds a STALE_SOURCE error for the given path.
func Stale(component, path string) *Error {
	return New(ErrCodeStale, fmt.Sprintf("file changed since open: %s", path)).
		WithComponent(component).
		WithDetail("path", path)
}

// TooLarge builds a TOO_LARGE error describing the rejected value.
func TooLarge(component string, size, capacity int64) *Error {
	return New(ErrCodeTooLarge,
		fmt.Sprintf("value of %d bytes exceeds capacity of %d bytes", size, capacity)).
		WithComponent(component).
		WithDetail("size", size).
		WithDetail("capacity", capacity)
}

// IOFailure wraps an underlying I/O error.
func IOFailure(component string, cause error) *Error {
	return New(ErrCodeIOFailure, "i/o failure").
		WithComponent(component).
		WithCause(cause)
}
