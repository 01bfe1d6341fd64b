package domain

import "fmt"

// Error types for consistent error handling across the gateway.

// ErrAuthentication indicates the OAuth/mTLS exchange with a bank failed.
// Fatal for the current operation, retryable on the next call.
type ErrAuthentication struct {
	Bank string
	Body string
	Err  error
}

func (e *ErrAuthentication) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("authentication failed [%s]: %s", e.Bank, e.Body)
	}
	return fmt.Sprintf("authentication failed [%s]: %v", e.Bank, e.Err)
}

func (e *ErrAuthentication) Unwrap() error {
	return e.Err
}

// ErrExternalService indicates a transport-level failure talking to a bank.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrBankRejection indicates the bank understood the request and declined it.
// Not retried automatically; the bank's message is surfaced verbatim.
type ErrBankRejection struct {
	Bank    string
	Message string
	Status  int
	RawBody string
}

func (e *ErrBankRejection) Error() string {
	return fmt.Sprintf("bank rejection [%s]: %s (status %d)", e.Bank, e.Message, e.Status)
}

// ErrUnsupportedBank indicates a bank code with no registered adapter.
// Configuration error, not retryable.
type ErrUnsupportedBank struct {
	Code string
}

func (e *ErrUnsupportedBank) Error() string {
	return fmt.Sprintf("unsupported bank code: %s", e.Code)
}

// ErrNotImplemented marks an adapter placeholder for a bank pending
// integration. Every operation of a stub adapter fails with it.
type ErrNotImplemented struct {
	Bank      string
	Operation string
}

func (e *ErrNotImplemented) Error() string {
	return fmt.Sprintf("operation %s not implemented for bank %s", e.Operation, e.Bank)
}

// ErrEncodingOverflow indicates a value does not fit its fixed-width CNAB
// slot. Raised for numeric and identifier fields, where silent truncation
// would corrupt money or keys.
type ErrEncodingOverflow struct {
	Field string
	Value string
	Width int
}

func (e *ErrEncodingOverflow) Error() string {
	return fmt.Sprintf("field %q overflows width %d: %q", e.Field, e.Width, e.Value)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrCircuitOpen indicates the circuit breaker is open for a bank.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrUnauthorized indicates an invalid or missing API key on the gateway
// surface (not a bank-side auth failure).
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
