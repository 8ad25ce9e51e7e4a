package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common adapter conditions.
var (
	// ErrNotConnected is returned when Send is called before a successful Connect.
	ErrNotConnected = errors.New("adapter not connected")
	// ErrNoCredentials is returned when a signed request is built without credentials.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrClientClosed is returned when attempting to use a closed HTTP client.
	ErrClientClosed = errors.New("client is closed")
)

// ValidationError indicates a missing or malformed request parameter.
// It is raised before any network call is made.
type ValidationError struct {
	// Param names the offending parameter.
	Param string `json:"param"`
	// Message is the human-readable error description.
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("validation: parameter %q: %s", e.Param, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

// NewValidationError creates a ValidationError for the named parameter.
func NewValidationError(param, message string) *ValidationError {
	return &ValidationError{Param: param, Message: message}
}

// MissingParamError creates a ValidationError for a required parameter
// that was not supplied.
func MissingParamError(param string) *ValidationError {
	return &ValidationError{Param: param, Message: "missing required parameter"}
}

// ConnectionError indicates that Connect (time sync) failed at the transport level.
type ConnectionError struct {
	// Endpoint is the path that was being contacted.
	Endpoint string `json:"endpoint"`
	// Err is the underlying transport error.
	Err error `json:"-"`
}

// Error implements the error interface for ConnectionError.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a ConnectionError for the given endpoint.
func NewConnectionError(endpoint string, err error) *ConnectionError {
	return &ConnectionError{Endpoint: endpoint, Err: err}
}

// StateError indicates an operation was attempted in the wrong adapter state,
// such as Send before a successful Connect.
type StateError struct {
	// Op is the operation that was attempted.
	Op string `json:"op"`
	// Err is the underlying state condition.
	Err error `json:"-"`
}

// Error implements the error interface for StateError.
func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying state condition.
func (e *StateError) Unwrap() error {
	return e.Err
}

// NewStateError creates a StateError for the given operation.
func NewStateError(op string, err error) *StateError {
	return &StateError{Op: op, Err: err}
}

// TransportError indicates a network failure while executing Send.
// The request may or may not have reached the exchange.
type TransportError struct {
	// Err is the underlying network error.
	Err error `json:"-"`
}

// Error implements the error interface for TransportError.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a TransportError wrapping the given error.
func NewTransportError(err error) *TransportError {
	return &TransportError{Err: err}
}

// ExchangeError represents an application-level failure reported by the
// exchange. It is carried inside a failed response envelope and never raised.
type ExchangeError struct {
	// Code is the exchange-specific result code (Bybit retCode).
	Code int `json:"code"`
	// Message is the exchange-supplied error description.
	Message string `json:"message"`
	// HTTPStatus is the transport status code of the response.
	HTTPStatus int `json:"http_status"`
	// Timestamp is when the error was observed.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for ExchangeError.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %d (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// NewExchangeError creates an ExchangeError with the current timestamp.
func NewExchangeError(code, httpStatus int, message string) *ExchangeError {
	return &ExchangeError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// IsValidationError returns true if the error is a request validation failure.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsConnectionError returns true if the error is a connect-time transport failure.
func IsConnectionError(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}

// IsStateError returns true if the error is a wrong-state failure.
func IsStateError(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsTransportError returns true if the error is a send-time network failure.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
