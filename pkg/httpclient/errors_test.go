package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   int
		target error
	}{
		{"structured not found", http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"category 9"}}`, http.StatusNotFound, apperrors.ErrNotFound},
		{"bad request", http.StatusBadRequest, `{"error":{"code":"INVALID_INPUT","message":"bad page"}}`, http.StatusBadRequest, apperrors.ErrInvalidInput},
		{"plain unavailable", http.StatusServiceUnavailable, `maintenance`, http.StatusServiceUnavailable, apperrors.ErrServiceUnavail},
		{"throttled", http.StatusTooManyRequests, ``, http.StatusServiceUnavailable, apperrors.ErrServiceUnavail},
		{"server error", http.StatusInternalServerError, `oops`, http.StatusBadGateway, apperrors.ErrBadGateway},
		{"gone", http.StatusGone, `{"error":{"code":"GONE","message":"removed"}}`, http.StatusGone, apperrors.ErrGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(response(tt.status, tt.body), "catalog")
			assert.Equal(t, tt.want, apperrors.HTTPStatus(err))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestParseResponseError_UnknownStatusKeepsCode(t *testing.T) {
	err := ParseResponseError(response(http.StatusTeapot, `{"error":{"code":"TEAPOT","message":"short and stout"}}`), "catalog")

	var appErr *apperrors.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, "TEAPOT", appErr.Code)
	assert.Equal(t, "catalog: short and stout", appErr.Message)
}

func TestAsAppError(t *testing.T) {
	assert.NoError(t, AsAppError(nil, "catalog"))
	assert.ErrorIs(t, AsAppError(context.Canceled, "catalog"), context.Canceled)

	existing := apperrors.InvalidInput("x")
	assert.Same(t, existing, AsAppError(existing, "catalog"))

	err := AsAppError(errors.New("dial tcp: refused"), "catalog")
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatus(err))

	err = AsAppError(&ServerError{Upstream: "catalog", Status: http.StatusServiceUnavailable}, "catalog")
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
}
