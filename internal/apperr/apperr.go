// Package apperr provides the standardized error taxonomy used across the
// API: AuthMissing/AuthInvalid, Forbidden, NotFound, Conflict, Invalid,
// Upstream and Internal, each mapped to a fixed HTTP status code.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind is a machine-readable error category. Unlike a free-form error code,
// the set of kinds is closed: every caller of New can be exhaustively
// reasoned about against this list.
type Kind string

const (
	KindAuthMissing Kind = "AUTH_MISSING"
	KindAuthInvalid Kind = "AUTH_INVALID"
	KindForbidden   Kind = "FORBIDDEN"
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "CONFLICT"
	KindInvalid     Kind = "INVALID"
	KindUpstream    Kind = "UPSTREAM"
	KindInternal    Kind = "INTERNAL"
)

// AppError is a standardized application error carrying its HTTP status.
type AppError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrorResponse is the JSON body returned to API callers on failure.
type ErrorResponse struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ToResponse converts an AppError into its wire representation.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Kind: e.Kind, Message: e.Message, Details: e.Details}
}

func statusFor(k Kind) int {
	switch k {
	case KindAuthMissing, KindAuthInvalid, KindForbidden:
		// Spec deliberately collapses authorizer denial to 401, not 403.
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError of the given kind with no details.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, StatusCode: statusFor(kind)}
}

// Wrap creates an AppError of the given kind, carrying an underlying error's
// message as Details.
func Wrap(kind Kind, message string, err error) *AppError {
	d := ""
	if err != nil {
		d = err.Error()
	}
	return &AppError{Kind: kind, Message: message, Details: d, StatusCode: statusFor(kind)}
}

func AuthMissing(message string) *AppError { return New(KindAuthMissing, message) }
func AuthInvalid(message string) *AppError { return New(KindAuthInvalid, message) }
func Forbidden(message string) *AppError   { return New(KindForbidden, message) }

func NotFound(resource string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError { return New(KindConflict, message) }
func Invalid(message string) *AppError  { return New(KindInvalid, message) }

func Upstream(service string, err error) *AppError {
	return Wrap(KindUpstream, fmt.Sprintf("%s is unavailable", service), err)
}

func Internal(message string, err error) *AppError {
	return Wrap(KindInternal, message, err)
}
