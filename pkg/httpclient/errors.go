package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ServerError is a 5xx answer from an upstream.
type ServerError struct {
	Upstream string
	Status   int
	Body     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s server error %d: %s", e.Upstream, e.Status, e.Body)
}

// DownstreamErrorResponse is the `{"error":{"code","message"}}` body most
// upstream services answer with.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads a non-2xx response and converts it into an
// AppError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", upstream, resp.StatusCode, err)
	}

	code, message := "", string(body)
	var downstream DownstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != nil {
		code, message = downstream.Error.Code, downstream.Error.Message
	}
	return mapDownstreamError(resp.StatusCode, code, message, upstream)
}

func mapDownstreamError(status int, code, message, upstream string) error {
	qualified := fmt.Sprintf("%s: %s", upstream, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(upstream, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusGone:
		return apperrors.Gone(qualified)
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return apperrors.Unavailable(qualified)
	case status >= 500:
		return apperrors.BadGateway(upstream, fmt.Errorf("status %d (%s): %s", status, code, message))
	default:
		if code == "" {
			code = "UPSTREAM_ERROR"
		}
		return &apperrors.AppError{Code: code, Message: qualified, Status: status}
	}
}

// AsAppError converts a transport or breaker error into an AppError so the
// caller can surface a stable status code.
func AsAppError(err error, upstream string) error {
	var appErr *apperrors.AppError
	var srvErr *ServerError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case isContextError(err):
		return err
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, gobreakerTooMany):
		return apperrors.Unavailable(upstream + " is temporarily unavailable")
	case errors.As(err, &srvErr):
		if srvErr.Status == http.StatusServiceUnavailable {
			return apperrors.Unavailable(upstream + " is temporarily unavailable")
		}
		return apperrors.BadGateway(upstream, err)
	default:
		return apperrors.BadGateway(upstream, err)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
