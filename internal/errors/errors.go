// Package errors provides centralized error definitions and error handling utilities
// for stockroom. It defines sentinel errors, typed errors carrying dispatch and
// manifest context, and classification helpers.
//
// # Error Types
//
//   - DispatchError: a listener failed or panicked during an event dispatch pass
//   - ManifestError: a shipment manifest could not be parsed or contained unknown items
//   - ValidationError: invalid input or state
//
// # Usage
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrListenerFailed) { ... }
//
//	var dispatchErr *errors.DispatchError
//	if errors.As(err, &dispatchErr) {
//	    log.Printf("listener %d on %s failed", dispatchErr.Index, dispatchErr.Topic)
//	}
//
// Listener panics are converted into a DispatchError that matches
// ErrListenerPanicked and carries the recovered value and stack.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Dispatch-related sentinel errors
var (
	// ErrListenerFailed indicates that a listener returned an error during dispatch.
	ErrListenerFailed = New("listener failed")
	// ErrListenerPanicked indicates that a listener panicked during dispatch.
	ErrListenerPanicked = New("listener panicked")
	// ErrDispatchCanceled indicates that a dispatch pass stopped because its context ended.
	ErrDispatchCanceled = New("dispatch canceled")
)

// Inventory-related sentinel errors
var (
	// ErrUnknownItem indicates an item kind outside the known catalog.
	ErrUnknownItem = New("unknown item")
	// ErrInvalidManifest indicates a shipment manifest that could not be decoded.
	ErrInvalidManifest = New("invalid manifest")
	// ErrEmptyShipment indicates a shipment with no items.
	ErrEmptyShipment = New("shipment has no items")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// StockroomError is the base interface for typed errors in this module.
type StockroomError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// DispatchError
// -----------------------------------------------------------------------------

// DispatchError reports a listener failure inside one dispatch pass.
//
// Example:
//
//	err := errors.NewDispatchError("WIDGET", 2, cause)
//	fmt.Println(err) // "dispatch error [topic=WIDGET, listener=2]: listener failed: out of stock"
type DispatchError struct {
	baseError
	Topic string
	Index int
	// PanicValue is the recovered value when the listener panicked.
	PanicValue any
	// Stack is the goroutine stack captured at recovery time.
	Stack []byte
}

// NewDispatchError creates a DispatchError for a listener that returned cause.
func NewDispatchError(topic string, index int, cause error) *DispatchError {
	return &DispatchError{
		baseError: baseError{
			message:  ErrListenerFailed.Error(),
			cause:    cause,
			severity: SeverityError,
		},
		Topic: topic,
		Index: index,
	}
}

// NewPanicError creates a DispatchError for a listener that panicked with value.
func NewPanicError(topic string, index int, value any, stack []byte) *DispatchError {
	cause, ok := value.(error)
	if !ok {
		cause = fmt.Errorf("%v", value)
	}
	return &DispatchError{
		baseError: baseError{
			message:  ErrListenerPanicked.Error(),
			cause:    cause,
			severity: SeverityCritical,
		},
		Topic:      topic,
		Index:      index,
		PanicValue: value,
		Stack:      stack,
	}
}

// Panicked reports whether the listener panicked rather than returning an error.
func (e *DispatchError) Panicked() bool {
	return e.Stack != nil || e.PanicValue != nil
}

// Error returns the formatted error message.
func (e *DispatchError) Error() string {
	prefix := fmt.Sprintf("dispatch error [topic=%s, listener=%d]", e.Topic, e.Index)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DispatchError) Is(target error) bool {
	if _, ok := target.(*DispatchError); ok {
		return true
	}
	if e.Panicked() && target == ErrListenerPanicked {
		return true
	}
	if !e.Panicked() && target == ErrListenerFailed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ManifestError
// -----------------------------------------------------------------------------

// ManifestError represents a shipment manifest that could not be used.
//
// Example:
//
//	err := errors.NewManifestError("unknown item \"anvil\"", errors.ErrUnknownItem).WithSource("drop/monday.yaml")
type ManifestError struct {
	baseError
	Source string
}

// NewManifestError creates a new ManifestError.
func NewManifestError(message string, cause error) *ManifestError {
	return &ManifestError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithSource records where the manifest came from (a file path or "inline").
func (e *ManifestError) WithSource(source string) *ManifestError {
	e.Source = source
	return e
}

// Error returns the formatted error message.
func (e *ManifestError) Error() string {
	prefix := "manifest error"
	if e.Source != "" {
		prefix = fmt.Sprintf("manifest error [source=%s]", e.Source)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ManifestError) Is(target error) bool {
	if _, ok := target.(*ManifestError); ok {
		return true
	}
	if target == ErrInvalidManifest {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("customer name cannot be empty").WithField("name")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var typed StockroomError
	if As(err, &typed) {
		return typed.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement StockroomError.
// For joined errors the highest severity among the parts wins.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		highest := SeverityDebug
		for _, part := range joined.Unwrap() {
			if s := GetSeverity(part); s > highest {
				highest = s
			}
		}
		return highest
	}

	var typed StockroomError
	if As(err, &typed) {
		return typed.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
