package apperr

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("reserve: %w", fmt.Errorf("%w: product p1", ErrInsufficientStock))
	assert.Equal(t, "insufficient_stock", Kind(err))

	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "internal", Kind(fmt.Errorf("something else")))
	assert.Equal(t, "timeout", Kind(context.DeadlineExceeded))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[error]int{
		nil:                      http.StatusOK,
		ErrInvalidInput:          http.StatusBadRequest,
		ErrNotFound:              http.StatusNotFound,
		ErrInsufficientStock:     http.StatusServiceUnavailable,
		ErrStockMissing:          http.StatusServiceUnavailable,
		ErrStorageUnavailable:    http.StatusServiceUnavailable,
		ErrPersistFailed:         http.StatusInternalServerError,
		ErrInvalidTransition:     http.StatusInternalServerError,
		context.DeadlineExceeded: http.StatusGatewayTimeout,
	}
	for err, want := range cases {
		assert.Equalf(t, want, HTTPStatus(err), "error %v", err)
	}

	wrapped := fmt.Errorf("outer: %w", ErrStockMissing)
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(wrapped))
}
