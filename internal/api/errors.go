package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fmuoria/resume-screener/internal/agent"
	"github.com/fmuoria/resume-screener/internal/dataset"
	"github.com/fmuoria/resume-screener/internal/table"
)

// APIError is the body of every error response, under an "error" key.
type APIError struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

var (
	errBadRequest = func(detail string) *APIError { return newAPIError(http.StatusBadRequest, "Bad Request", detail) }
	errNotFound   = func(detail string) *APIError { return newAPIError(http.StatusNotFound, "Not Found", detail) }
	errInternal   = func(detail string) *APIError {
		return newAPIError(http.StatusInternalServerError, "Internal Server Error", detail)
	}
	errUnavailable = func(detail string) *APIError {
		return newAPIError(http.StatusServiceUnavailable, "Service Unavailable", detail)
	}
)

func newAPIError(code int, message, detail string) *APIError {
	return &APIError{Code: code, Message: message, Detail: detail}
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// classify maps domain errors to HTTP errors. Unknown errors are internal;
// an unreachable dataset source is reported as unavailable.
func classify(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, agent.ErrNoFilter), errors.Is(err, agent.ErrMissingInput):
		return errBadRequest(err.Error())
	case errors.Is(err, table.ErrMissingColumn):
		return errInternal(err.Error())
	case errors.Is(err, dataset.ErrDownload):
		return errUnavailable(err.Error())
	default:
		return errInternal(err.Error())
	}
}
