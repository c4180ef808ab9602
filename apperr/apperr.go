// Package apperr holds the error kinds shared by the order and dispatch
// services. Callers wrap a kind with context using fmt.Errorf("...: %w") and
// classify with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNoRiderAvailable   = errors.New("no rider available")
	ErrAssignmentConflict = errors.New("rider assignment conflict")
	ErrUpstreamCall       = errors.New("upstream call failed")
	ErrUnexpected         = errors.New("unexpected error")
)

// Code returns the machine readable code used in error response bodies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_STATUS_TRANSITION"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNoRiderAvailable):
		return "NO_RIDER_AVAILABLE"
	case errors.Is(err, ErrAssignmentConflict):
		return "ASSIGNMENT_CONFLICT"
	case errors.Is(err, ErrUpstreamCall):
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// HTTPStatus maps an error kind to the status returned at the REST boundary.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoRiderAvailable), errors.Is(err, ErrAssignmentConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamCall):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Recoverable reports whether err is an expected condition that the next
// event or reconciliation pass will retry.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNoRiderAvailable) || errors.Is(err, ErrAssignmentConflict)
}
