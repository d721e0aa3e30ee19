package errors

import (
	"errors"
	"fmt"
)

// AppError application error carried from domain to transport.
//
// Design notes:
//  1. Code tells the client what kind of failure happened (never the HTTP status)
//  2. Message is safe to show to users
//  3. Err is the internal cause; it is logged, never serialized
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap supports errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps a system error (database, network) as an internal error.
// The cause stays reachable through errors.Is/As so callers can still tell
// a timeout from a business failure.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// Wrapf formats the message of a wrapped error
func Wrapf(err error, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// WithMessage derives an error with the same code and a more specific message.
// errors.Is(derived, e) still holds.
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e,
	}
}

// =========================================
// Error codes
// =========================================
// - 4xxxx: caller errors (bad params, business rule rejected)
// - 5xxxx: server errors (database, cache, broker)

const (
	// system (50000-50099)
	ErrCodeInternal      = 50000
	ErrCodeDatabaseError = 50001
	ErrCodeRedisError    = 50002
	ErrCodeBrokerError   = 50003

	// auth (40100-40199)
	ErrCodeUnauthorized = 40100
	ErrCodeInvalidToken = 40101
	ErrCodeTokenExpired = 40102
	ErrCodeForbidden    = 40104

	// resources (40400-40499)
	ErrCodeNotFound      = 40400
	ErrCodeBatchNotFound = 40401
	ErrCodeOrderNotFound = 40403

	// business rules (40000-40099)
	ErrCodeBusinessError      = 40000
	ErrCodeInsufficientStock  = 40001
	ErrCodeInvalidOrderStatus = 40002
	ErrCodeInvalidBatchStatus = 40003
	ErrCodeStockModelConflict = 40004
	ErrCodeDuplicateRequest   = 40005
	ErrCodeOrderRefInUse      = 40006
	ErrCodeDuplicateEntry     = 40009

	// params (40900-40999)
	ErrCodeInvalidParams   = 40900
	ErrCodeBindError       = 40901
	ErrCodeInvalidQuantity = 40902
)

// =========================================
// Predefined errors
// =========================================

var (
	ErrInternal      = New(ErrCodeInternal, "internal server error")
	ErrDatabaseError = New(ErrCodeDatabaseError, "database error")
	ErrRedisError    = New(ErrCodeRedisError, "cache service error")

	ErrUnauthorized = New(ErrCodeUnauthorized, "authentication required")
	ErrInvalidToken = New(ErrCodeInvalidToken, "invalid token")
	ErrTokenExpired = New(ErrCodeTokenExpired, "token expired")
	ErrForbidden    = New(ErrCodeForbidden, "access denied")

	ErrInvalidParams = New(ErrCodeInvalidParams, "invalid parameters")
	ErrBindError     = New(ErrCodeBindError, "malformed request body")
)

// =========================================
// Helpers
// =========================================

// IsAppError reports whether err carries an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts the AppError from err, wrapping unknown errors as internal
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, "internal server error")
}

// IsClientError reports whether the code is a 4xxxx code
func IsClientError(code int) bool {
	return code >= 40000 && code < 50000
}
