// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrRateLimited      = errors.New("rate limited")
	ErrInputValidation  = errors.New("input validation failed")
	ErrUpstream         = errors.New("upstream request failed")
	ErrStorage          = errors.New("storage error")
	ErrAlertNotFound    = errors.New("alert not found")
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrNoAPIToken       = errors.New("no API token configured")
	ErrCredentialAccess = errors.New("credential access denied")
)

// ValidationError represents a validation error raised before any request is built.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is lets errors.Is(err, ErrInputValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// RateLimitError is returned when a request category has exhausted its window.
type RateLimitError struct {
	Category string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited [%s]: request budget exhausted for current window", e.Category)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(category string) *RateLimitError {
	return &RateLimitError{Category: category}
}

// UpstreamError represents a non-success response (or transport failure) from the quote API.
// Status is zero when no HTTP response was received.
type UpstreamError struct {
	Status   int
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream error [%s] status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream error [%s] status %d", e.Endpoint, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUpstream
}

// Is lets errors.Is(err, ErrUpstream) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(endpoint string, status int, err error) *UpstreamError {
	return &UpstreamError{
		Status:   status,
		Endpoint: endpoint,
		Err:      err,
	}
}

// StorageError represents a failed read or write against the key-value backend.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error [%s %s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error [%s %s]", e.Op, e.Key)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewStorageError creates a new StorageError.
func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{
		Op:  op,
		Key: key,
		Err: err,
	}
}

// SecurityError represents a security-related error.
type SecurityError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *SecurityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("security error [%s]: %s: %v", e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("security error [%s]: %s", e.Operation, e.Reason)
}

func (e *SecurityError) Unwrap() error {
	return e.Err
}

// NewSecurityError creates a new SecurityError.
func NewSecurityError(operation, reason string, err error) *SecurityError {
	return &SecurityError{
		Operation: operation,
		Reason:    reason,
		Err:       err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsRetryable reports whether err is worth retrying explicitly by a caller.
// Only upstream failures qualify; validation and rate-limit denials never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInputValidation) || errors.Is(err, ErrRateLimited) {
		return false
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Status == 0 || up.Status == 429 || up.Status >= 500
	}
	return false
}
