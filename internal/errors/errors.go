package errors

import (
	stderrors "errors"
	"fmt"
)

// KBError is the structured error type for kbqa.
// It carries enough context for logging, CLI presentation, and for the
// ingestion pipeline to decide whether a failure is file-level or run-level.
type KBError struct {
	// Code is the unique error code (e.g., "ERR_210_INDEX_LOCK_HELD").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Engine, etc.).
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
func (e *KBError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works against sentinel-like KBErrors.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *KBError) WithSuggestion(suggestion string) *KBError {
	e.Suggestion = suggestion
	return e
}

// New creates a new KBError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error.
// The error's message becomes the KBError message.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *KBError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *KBError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *KBError {
	return New(ErrCodeInternal, message, cause)
}

// UnsupportedFormat reports a file whose extension no parser handles.
func UnsupportedFormat(path string) *KBError {
	return New(ErrCodeUnsupportedFormat, "unsupported file format: "+path, nil).
		WithDetail("path", path)
}

// ParseFailure reports a file that could not be turned into text.
func ParseFailure(path string, cause error) *KBError {
	return New(ErrCodeParseFailure, "failed to parse "+path, cause).
		WithDetail("path", path)
}

// IndexLockHeld reports a storage directory locked by another process.
func IndexLockHeld(lockPath string) *KBError {
	return New(ErrCodeIndexLockHeld, "index storage is locked by another process", nil).
		WithDetail("lock", lockPath).
		WithSuggestion("make sure no other kbqa process is indexing this storage path, then remove " + lockPath + " if it is stale")
}

// TrackingIO reports a failure reading or writing the tracking state.
func TrackingIO(message string, cause error) *KBError {
	return New(ErrCodeTrackingIO, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current run.
func IsFatal(err error) bool {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a KBError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}
