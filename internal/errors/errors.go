package errors

import (
	stderrors "errors"
	"fmt"
)

// MatchError is the structured error type for nocmatch.
type MatchError struct {
	// Code is the unique error code (e.g., "ERR_207_DATA_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
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
func (e *MatchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MatchError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works against the package sentinels.
func (e *MatchError) Is(target error) bool {
	if t, ok := target.(*MatchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *MatchError) WithDetail(key, value string) *MatchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *MatchError) WithSuggestion(suggestion string) *MatchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MatchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *MatchError {
	return &MatchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MatchError from an existing error.
func Wrap(code string, err error) *MatchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// DataUnavailable reports a missing, empty, or unreadable taxonomy source.
func DataUnavailable(message string, cause error) *MatchError {
	return New(ErrCodeDataUnavailable, message, cause).
		WithSuggestion("Check taxonomy.path in your config and run 'nocmatch index'")
}

// RetrievalUnavailable reports an embedding gateway failure. Callers may
// retry or fall back to lexical-only results.
func RetrievalUnavailable(message string, cause error) *MatchError {
	return New(ErrCodeRetrievalUnavailable, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MatchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a query validation error.
func ValidationError(message string, cause error) *MatchError {
	return New(ErrCodeInvalidQuery, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MatchError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if any MatchError in the chain is retryable.
func IsRetryable(err error) bool {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first MatchError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}

// GetCategory extracts the category from the first MatchError in the chain.
func GetCategory(err error) Category {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me.Category
	}
	return ""
}
