// Package domain contains the core business entities and interfaces for the payment service.
package domain

import "errors"

// Domain errors represent business rule violations.
// These are used to communicate specific error conditions from the domain layer.
var (
	// ErrAuth is returned when the provider rejects our credentials or the
	// token request fails after retries.
	ErrAuth = errors.New("provider authentication failed")

	// ErrProvider is returned for non-2xx responses, malformed payloads, or
	// provider-reported business failures.
	ErrProvider = errors.New("payment provider error")

	// ErrValidation is returned for bad local input, before any network call.
	ErrValidation = errors.New("invalid payment request")

	// ErrNotFound is returned when a payment cannot be found for a reference
	// or tracking id.
	ErrNotFound = errors.New("payment not found")

	// ErrDuplicateRequest is returned for a re-entrant start for a merchant
	// reference that already has an in-flight or finished payment.
	ErrDuplicateRequest = errors.New("payment already exists for reference")
)

// PaymentError wraps a domain error with additional context.
type PaymentError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PaymentError.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given error and message.
func NewPaymentError(err error, message, code string) *PaymentError {
	return &PaymentError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
