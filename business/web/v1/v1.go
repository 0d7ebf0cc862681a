// Package v1 represents types used by the web application for v1.
package v1

import (
	"errors"
	"net/http"

	"github.com/utxod/utxod/foundation/validate"
)

// ErrorResponse is the form used for API responses from failures in the API.
// Fields is only populated for validation failures, one message per
// offending request field.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// RequestError is used to pass an error during the request through the
// application with web specific context. Handlers wrap expected failures,
// like an unknown outpoint or a malformed locator hash, so the client gets
// the real message instead of a masked 500.
type RequestError struct {
	Err    error
	Status int
}

// NewRequestError wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewRequestError(err error, status int) error {
	return &RequestError{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (re *RequestError) Error() string {
	return re.Err.Error()
}

// Unwrap returns the wrapped error so callers can inspect what it carries,
// such as the field errors of a failed validation.
func (re *RequestError) Unwrap() error {
	return re.Err
}

// IsRequestError checks if an error of type RequestError exists.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// GetRequestError returns a copy of the RequestError pointer.
func GetRequestError(err error) *RequestError {
	var re *RequestError
	if !errors.As(err, &re) {
		return nil
	}
	return re
}

// =============================================================================

// NewErrorResponse inspects an error leaving a handler and builds the
// response form and status code owed to the client. Validation failures
// enumerate the offending fields, trusted request errors carry their own
// message and status, and everything else is masked as an internal error.
func NewErrorResponse(err error) (ErrorResponse, int) {
	switch {
	case validate.IsFieldErrors(err):
		fields := make(map[string]string)
		for _, fieldErr := range validate.GetFieldErrors(err) {
			fields[fieldErr.Field] = fieldErr.Error
		}

		return ErrorResponse{
			Error:  "data validation error",
			Fields: fields,
		}, http.StatusBadRequest

	case IsRequestError(err):
		reqErr := GetRequestError(err)
		return ErrorResponse{
			Error: reqErr.Error(),
		}, reqErr.Status
	}

	return ErrorResponse{
		Error: http.StatusText(http.StatusInternalServerError),
	}, http.StatusInternalServerError
}
