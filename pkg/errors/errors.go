package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the error shape the API renders to clients. Code is a stable
// machine-readable identifier, Message is safe to show to users, and Internal
// carries the underlying cause for logs only.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap makes the internal cause visible to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal attaches a cause without mutating the shared sentinel.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage swaps in a more specific message without mutating the shared sentinel.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Sentinels shared across services and handlers. Services derive
// operation-specific errors from these with WithMessage.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "You do not have access to this resource",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "The requested resource was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "The request could not be processed",
		StatusCode: http.StatusBadRequest,
	}

	// ErrInvitationExpired is a read-time verdict; the stored row stays pending.
	ErrInvitationExpired = &AppError{
		Code:       "INVITATION_EXPIRED",
		Message:    "This invitation has expired",
		StatusCode: http.StatusBadRequest,
	}

	ErrTeamFull = &AppError{
		Code:       "TEAM_FULL",
		Message:    "This team has no remaining seats",
		StatusCode: http.StatusBadRequest,
	}

	// ErrConflict covers duplicate resources, for example a second pending
	// invitation for the same recipient, inviter, and type.
	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "A conflicting resource already exists",
		StatusCode: http.StatusConflict,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Something went wrong, please try again later",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests",
		StatusCode: http.StatusTooManyRequests,
	}
)

// New constructs an AppError from scratch. Prefer deriving from a sentinel.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap hides an arbitrary error behind a client-safe message, keeping the
// cause attached for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError normalises any error to an AppError; unknown errors become
// ErrInternalServer so no internals leak to clients.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest reports a request validation problem with a caller-supplied message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
