// Package apperr defines the error taxonomy shared by the order core.
// Every boundary returns one of these sentinels (possibly wrapped); the
// HTTP layer is the only place that translates them to status codes.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrStockMissing       = errors.New("stock key missing")
	ErrPersistFailed      = errors.New("persist failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotFound           = errors.New("not found")
	ErrMissingDependency  = errors.New("missing dependency")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"

	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"

	case errors.Is(err, ErrStockMissing):
		return "stock_missing"

	case errors.Is(err, ErrPersistFailed):
		return "persist_failed"

	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"

	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrMissingDependency):
		return "missing_dependency"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// HTTPStatus maps an error to the status code used on the create path.
// Reservation denials surface as 503, persistence failures as 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest

	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrStockMissing),
		errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}
