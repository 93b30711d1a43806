package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInternal     = errors.New("internal error")
)

// Export pipeline errors.
var (
	ErrSizeExceeded = errors.New("export size exceeded")
	ErrExportFailed = errors.New("export request failed")
	ErrTransfer     = errors.New("transfer failed")
	ErrFormat       = errors.New("unrecognized payload format")
	ErrExhausted    = errors.New("export strategies exhausted")
)

// Specific errors.
var (
	ErrArtifactNotFound   = fmt.Errorf("artifact: %w", ErrNotFound)
	ErrInvalidRegion      = fmt.Errorf("region: %w", ErrInvalidInput)
	ErrStorageUnavailable = fmt.Errorf("storage: %w", ErrUnavailable)
	ErrNegotiationBusy    = fmt.Errorf("negotiation in progress: %w", ErrUnavailable)
)

// FailureKind classifies a rejected export request.
type FailureKind int

// Failure kinds.
const (
	FailureUnknown FailureKind = iota
	FailureSizeExceeded
	FailureOther
)

// String returns the string representation of the kind.
func (k FailureKind) String() string {
	switch k {
	case FailureSizeExceeded:
		return "size_exceeded"
	case FailureOther:
		return "other"
	default:
		return "unknown"
	}
}

// ExportError is a classified failure from the remote export service.
type ExportError struct {
	Kind    FailureKind
	Code    string // Service error code, if any
	Message string // Service error message
	Err     error  // Underlying error (transport, decoding)
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("export rejected (%s, %s): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("export rejected (%s): %s", e.Kind, msg)
}

// Unwrap returns the export sentinels and the underlying error.
func (e *ExportError) Unwrap() []error {
	errs := []error{ErrExportFailed}
	if e.Kind == FailureSizeExceeded {
		errs = append(errs, ErrSizeExceeded)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the failure kind of an error from the export service.
// Errors that are not ExportErrors are Unknown.
func KindOf(err error) FailureKind {
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		return exportErr.Kind
	}
	return FailureUnknown
}

// TransferError represents a network or stream failure while staging.
type TransferError struct {
	URL        string // Locator URL
	StatusCode int    // HTTP status, 0 if the request never completed
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transfer failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transfer failed: %v", e.Err)
}

// Unwrap returns the underlying error and the transfer sentinel.
func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransfer}
	}
	return []error{ErrTransfer, e.Err}
}

// FormatError represents a payload that is not a recognized raster or a
// usable archive.
type FormatError struct {
	Path      string   // Staged file that was inspected
	Signature []byte   // Leading bytes
	Members   []string // Archive member names, if the payload was an archive
	Message   string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if len(e.Members) > 0 {
		return fmt.Sprintf("%s (archive members: %s)", e.Message, strings.Join(e.Members, ", "))
	}
	if len(e.Signature) > 0 {
		return fmt.Sprintf("%s (signature %q)", e.Message, e.Signature)
	}
	return e.Message
}

// Unwrap returns the format sentinel.
func (e *FormatError) Unwrap() error {
	return ErrFormat
}

// ExhaustionError is returned when every candidate and every tile failed.
type ExhaustionError struct {
	Strategies []string
	Attempts   []Attempt
}

// Error implements the error interface.
func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("all export strategies exhausted (%s) after %d attempts",
		strings.Join(e.Strategies, ", "), len(e.Attempts))
}

// Unwrap returns the exhaustion sentinel.
func (e *ExhaustionError) Unwrap() error {
	return ErrExhausted
}

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (upload, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
