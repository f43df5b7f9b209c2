package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation              ErrorType = "VALIDATION"
	ErrorTypeNotFound                ErrorType = "NOT_FOUND"
	ErrorTypeAlreadyExists           ErrorType = "ALREADY_EXISTS"
	ErrorTypeUnauthorized            ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden               ErrorType = "FORBIDDEN"
	ErrorTypeStorageUnavailable      ErrorType = "STORAGE_UNAVAILABLE"
	ErrorTypeUnavailable             ErrorType = "UNAVAILABLE"
	ErrorTypeInconsistent            ErrorType = "INCONSISTENT"
	ErrorTypeReconciliationIntegrity ErrorType = "RECONCILIATION_INTEGRITY"
	ErrorTypeEmailUnverified         ErrorType = "EMAIL_UNVERIFIED"
	ErrorTypeInternal                ErrorType = "INTERNAL"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewEmailUnverified reports that the mail provider refused an address it
// has not verified.
func NewEmailUnverified(message string, err error) error {
	return &AppError{Type: ErrorTypeEmailUnverified, Message: message, Err: err}
}

// NewAlreadyExists creates a conflict-on-create error
func NewAlreadyExists(message string) error {
	return &AppError{Type: ErrorTypeAlreadyExists, Message: message}
}

func NewUnauthorized(message string) error {
	return &AppError{Type: ErrorTypeUnauthorized, Message: message}
}

func NewForbidden(message string) error {
	return &AppError{Type: ErrorTypeForbidden, Message: message}
}

// NewStorageUnavailable reports a transient storage failure. Callers may retry.
func NewStorageUnavailable(message string, err error) error {
	return &AppError{Type: ErrorTypeStorageUnavailable, Message: message, Err: err}
}

// NewUnavailable reports a transient failure of a non-storage collaborator.
func NewUnavailable(message string, err error) error {
	return &AppError{Type: ErrorTypeUnavailable, Message: message, Err: err}
}

// NewInconsistent reports a violated storage invariant. It is never retried.
func NewInconsistent(message string) error {
	return &AppError{Type: ErrorTypeInconsistent, Message: message}
}

// NewReconciliationIntegrity reports a move whose delete could not be confirmed.
func NewReconciliationIntegrity(message string) error {
	return &AppError{Type: ErrorTypeReconciliationIntegrity, Message: message}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// Type checking functions

func IsValidation(err error) bool    { return isType(err, ErrorTypeValidation) }
func IsNotFound(err error) bool      { return isType(err, ErrorTypeNotFound) }
func IsAlreadyExists(err error) bool { return isType(err, ErrorTypeAlreadyExists) }
func IsUnauthorized(err error) bool  { return isType(err, ErrorTypeUnauthorized) }
func IsForbidden(err error) bool     { return isType(err, ErrorTypeForbidden) }
func IsInconsistent(err error) bool  { return isType(err, ErrorTypeInconsistent) }
func IsInternal(err error) bool      { return isType(err, ErrorTypeInternal) }

func IsEmailUnverified(err error) bool {
	return isType(err, ErrorTypeEmailUnverified)
}

func IsStorageUnavailable(err error) bool {
	return isType(err, ErrorTypeStorageUnavailable)
}

func IsReconciliationIntegrity(err error) bool {
	return isType(err, ErrorTypeReconciliationIntegrity)
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	return isType(err, ErrorTypeStorageUnavailable) || isType(err, ErrorTypeUnavailable)
}

// IsFatal reports errors that indicate corrupted state and need an operator.
func IsFatal(err error) bool {
	return isType(err, ErrorTypeInconsistent) || isType(err, ErrorTypeReconciliationIntegrity)
}
