package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Authentication errors
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken   ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken   ErrorCode = "EXPIRED_TOKEN"
	ErrCodeInvalidCreds   ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountPending ErrorCode = "ACCOUNT_PENDING_APPROVAL"
	ErrCodeAccountLocked  ErrorCode = "ACCOUNT_LOCKED"

	// Authorization errors
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeAccountSuspended ErrorCode = "ACCOUNT_SUSPENDED"

	// Not found errors
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeProfileNotFound ErrorCode = "PROFILE_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeEmailExists    ErrorCode = "EMAIL_EXISTS"
	ErrCodeUsernameExists ErrorCode = "USERNAME_EXISTS"

	// Call session errors
	ErrCodeMediaUnavailable     ErrorCode = "MEDIA_UNAVAILABLE"
	ErrCodeSignalingSendFailure ErrorCode = "SIGNALING_SEND_FAILURE"
	ErrCodeNegotiationFailure   ErrorCode = "NEGOTIATION_FAILURE"
	ErrCodeStaleSignal          ErrorCode = "STALE_SIGNAL"
	ErrCodeCallBusy             ErrorCode = "CALL_BUSY"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase       ErrorCode = "DATABASE_ERROR"
	ErrCodeUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCodeTimeout        ErrorCode = "REQUEST_TIMEOUT"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
// The status code defaults to 500 Internal Server Error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

func ExpiredTokenError() *AppError {
	return NewWithStatus(ErrCodeExpiredToken, "Token has expired", http.StatusUnauthorized)
}

func InvalidCredentialsError() *AppError {
	return NewWithStatus(ErrCodeInvalidCreds, "Invalid email or password", http.StatusUnauthorized)
}

func AccountPendingError() *AppError {
	return NewWithStatus(ErrCodeAccountPending, "Account is awaiting administrator approval", http.StatusForbidden)
}

func AccountSuspendedError() *AppError {
	return NewWithStatus(ErrCodeAccountSuspended, "Account has been suspended", http.StatusForbidden)
}

func AccountLockedError() *AppError {
	return NewWithStatus(ErrCodeAccountLocked, "Too many failed attempts, try again later", http.StatusTooManyRequests)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func ProfileNotFoundError() *AppError {
	return NewWithStatus(ErrCodeProfileNotFound, "Profile not found", http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

func EmailExistsError() *AppError {
	return NewWithStatus(ErrCodeEmailExists, "Email already registered", http.StatusConflict)
}

func UsernameExistsError() *AppError {
	return NewWithStatus(ErrCodeUsernameExists, "Username already taken", http.StatusConflict)
}

// Call session errors

func MediaUnavailableError(err error) *AppError {
	return WrapWithStatus(ErrCodeMediaUnavailable, "Local media is unavailable", http.StatusServiceUnavailable, err)
}

func SignalingSendError(kind string, err error) *AppError {
	return WrapWithStatus(ErrCodeSignalingSendFailure, fmt.Sprintf("Failed to send %s signal", kind), http.StatusBadGateway, err)
}

func NegotiationError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeNegotiationFailure, message, http.StatusUnprocessableEntity, err)
}

func StaleSignalError(message string) *AppError {
	return NewWithStatus(ErrCodeStaleSignal, message, http.StatusConflict)
}

func CallBusyError() *AppError {
	return NewWithStatus(ErrCodeCallBusy, "A call is already in progress", http.StatusConflict)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return WrapWithStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

func UpstreamError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeUpstream, message, http.StatusBadGateway, err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

func RateLimitedError() *AppError {
	return NewWithStatus(ErrCodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

func TimeoutError() *AppError {
	return NewWithStatus(ErrCodeTimeout, "Request timeout", http.StatusGatewayTimeout)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// Is reports whether err carries an AppError with the given code anywhere in its chain
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}
