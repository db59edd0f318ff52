package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrRegionNotFound   = fmt.Errorf("region: %w", ErrNotFound)
	ErrDownloadNotFound = fmt.Errorf("download: %w", ErrNotFound)
	ErrTileNotFound     = fmt.Errorf("tile: %w", ErrNotFound)
	ErrRecordNotFound   = fmt.Errorf("engine record: %w", ErrNotFound)
	ErrInvalidBounds    = fmt.Errorf("bounds: %w", ErrInvalidInput)
	ErrInvalidZoom      = fmt.Errorf("zoom: %w", ErrInvalidInput)
	ErrIDExhausted      = fmt.Errorf("region id generation: %w", ErrInternal)
	ErrEngineClosed     = fmt.Errorf("engine closed: %w", ErrUnavailable)
)

// Error codes reported to callers. They are stable strings consumed by
// client-side logic and must not change.
const (
	CodeDownloadRegion = "DownloadRegionError"
	CodeRegionList     = "RegionListError"
	CodeRegionStatus   = "RegionStatusError"
	CodeDeleteRegion   = "DeleteRegionError"
	CodeDownloadEvents = "DownloadEventsError"
	CodeReleaseHandle  = "ReleaseDownloadError"
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
	Kind       error       // More specific sentinel; ErrInvalidInput when nil
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	return ErrInvalidInput
}

// EncodingError is returned when a region definition cannot be turned into a
// context blob. No engine state has been touched when it is returned.
type EncodingError struct {
	RegionID *RegionID // nil when no id had been assigned yet
	Err      error
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	if e.RegionID == nil {
		return fmt.Sprintf("encoding region: %v", e.Err)
	}
	return fmt.Sprintf("encoding region %d: %v", *e.RegionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *EncodingError) Unwrap() error {
	return e.Err
}

// EngineError wraps a failure reported by the storage engine. The message is
// passed through verbatim.
type EngineError struct {
	Operation string // create, list, remove, ...
	Err       error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err == nil {
		return "engine " + e.Operation + " failed"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// ListError represents a failure to produce the region listing.
type ListError struct {
	Err error
}

// Error implements the error interface.
func (e *ListError) Error() string {
	return fmt.Sprintf("listing regions: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ListError) Unwrap() error {
	return e.Err
}

// RegionNotFoundError is returned when no persisted region carries the id.
type RegionNotFoundError struct {
	ID RegionID
}

// Error implements the error interface.
func (e *RegionNotFoundError) Error() string {
	return fmt.Sprintf("there is no region with id %d", e.ID)
}

// Unwrap returns the underlying error type.
func (e *RegionNotFoundError) Unwrap() error {
	return ErrRegionNotFound
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
