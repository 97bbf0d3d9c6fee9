package errors

import (
	stderrors "errors"
	"fmt"
)

// BrainError is the structured error type for brainmcp.
// It provides rich context for error handling, logging, and user presentation.
type BrainError struct {
	// Code is the unique error code (e.g., "ERR_601_RATE_LIMITED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *BrainError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *BrainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with BrainError.
func (e *BrainError) Is(target error) bool {
	if t, ok := target.(*BrainError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *BrainError) WithDetail(key, value string) *BrainError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *BrainError) WithSuggestion(suggestion string) *BrainError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BrainError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *BrainError {
	return &BrainError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a BrainError from an existing error.
// The error's message becomes the BrainError message.
func Wrap(code string, err error) *BrainError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// RateLimited creates the admission-rejected error for a client identity.
// This is the stable signal for "back off and retry later"; it is never
// retried inside the process.
func RateLimited(clientID string) *BrainError {
	return New(ErrCodeRateLimited, "rate limit exceeded", nil).
		WithDetail("client", clientID).
		WithSuggestion("Back off and retry after the refill window")
}

// IndexUnavailable creates the error returned for queries issued before
// the first successful index build. It is distinct from an empty result
// set so callers can tell "not yet indexed" from "no matches".
func IndexUnavailable() *BrainError {
	return New(ErrCodeIndexUnavailable, "index not built yet", nil).
		WithSuggestion("Run 'brainmcp ingest' or wait for the first resync to complete")
}

// ResyncItemFailed creates the per-item error logged and skipped during a
// resync run. It never aborts the run.
func ResyncItemFailed(path string, cause error) *BrainError {
	return New(ErrCodeResyncItemFailed, fmt.Sprintf("resync item failed: %s", path), cause).
		WithDetail("path", path)
}

// ComputeFailed creates the error propagated to every caller waiting on a
// failed in-flight cache computation. Nothing is cached for it.
func ComputeFailed(cause error) *BrainError {
	return New(ErrCodeComputeFailed, "query computation failed", cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *BrainError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *BrainError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *BrainError {
	return New(ErrCodeInternal, message, cause)
}

// HasCode reports whether any error in the chain is a BrainError with the
// given code.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, &BrainError{Code: code})
}

// IsRateLimited reports whether err carries the rate-limit signal.
func IsRateLimited(err error) bool {
	return HasCode(err, ErrCodeRateLimited)
}

// IsIndexUnavailable reports whether err carries the not-yet-indexed signal.
func IsIndexUnavailable(err error) bool {
	return HasCode(err, ErrCodeIndexUnavailable)
}

// IsComputeFailed reports whether err originated from a failed cache compute.
func IsComputeFailed(err error) bool {
	return HasCode(err, ErrCodeComputeFailed)
}

// IsRetryable checks if an error is retryable.
// Returns true if any BrainError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	var be *BrainError
	if stderrors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var be *BrainError
	if stderrors.As(err, &be) {
		return be.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a BrainError anywhere in the chain.
// Returns empty string if no BrainError is present.
func GetCode(err error) string {
	var be *BrainError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return ""
}

// GetCategory extracts the category from a BrainError anywhere in the chain.
// Returns empty string if no BrainError is present.
func GetCategory(err error) Category {
	var be *BrainError
	if stderrors.As(err, &be) {
		return be.Category
	}
	return ""
}
