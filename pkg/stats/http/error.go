package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Error type in API response.
type errorType string

// Error response.
type apiError struct {
	typ errorType
	err error
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.typ, e.err)
}

// List of predefined errors.
const (
	errorTimeout         errorType = "timeout"
	errorCanceled        errorType = "canceled"
	errorBadData         errorType = "bad_data"
	errorInternal        errorType = "internal"
	errorNotFound        errorType = "not_found"
	errorTooManyRequests errorType = "too_many_requests"
)

// Non-standard status code (originally introduced by nginx) for the case when a client closes
// the connection while the server is still processing the request.
const statusClientClosedConnection = 499

// Custom errors.
var (
	errInvalidN        = errors.New("ranking size must be a non negative integer")
	errRateLimited     = errors.New("too many requests, retry later")
	errDashboardBuild  = errors.New("failed to load dashboard")
	errUnknownEndpoint = errors.New("unknown endpoint")
)

// loadError classifies an error returned while loading a dashboard.
func loadError(err error) *apiError {
	switch {
	case errors.Is(err, context.Canceled):
		return &apiError{errorCanceled, err}
	case errors.Is(err, context.DeadlineExceeded):
		return &apiError{errorTimeout, err}
	default:
		return &apiError{errorInternal, fmt.Errorf("%w: %w", errDashboardBuild, err)}
	}
}

// statusCode returns the HTTP status of an error type.
func statusCode(typ errorType) int {
	switch typ { //nolint:exhaustive
	case errorBadData:
		return http.StatusBadRequest
	case errorCanceled:
		return statusClientClosedConnection
	case errorTimeout:
		return http.StatusServiceUnavailable
	case errorNotFound:
		return http.StatusNotFound
	case errorTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Return error response for by setting errorString and errorType in response.
func errorResponse(w http.ResponseWriter, apiErr *apiError, logger *slog.Logger) {
	code := statusCode(apiErr.typ)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)

	response := Response[any]{
		Status:    "error",
		ErrorType: apiErr.typ,
		Error:     apiErr.err.Error(),
	}
	if err := json.NewEncoder(w).Encode(&response); err != nil {
		logger.Error("Failed to encode response", "err", err)
		w.Write([]byte("KO"))
	}
}
