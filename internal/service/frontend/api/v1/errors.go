package api

import (
	"fmt"
	"net/http"
)

// ErrorCode classifies an API error for clients.
type ErrorCode string

const (
	ErrorCodeNotFound      ErrorCode = "not_found"
	ErrorCodeAlreadyExists ErrorCode = "already_exists"
	ErrorCodeBadRequest    ErrorCode = "bad_request"
	ErrorCodeConflict      ErrorCode = "conflict"
	ErrorCodeInternalError ErrorCode = "internal_error"
)

// Error is an error that has an associated HTTP status code.
type Error struct {
	// Code is the error code to return.
	Code ErrorCode
	// HTTPStatus is the HTTP status code to return.
	HTTPStatus int
	// Message is the error message to return.
	Message string
}

// Error returns the error message.
func (e Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError builds an Error from a status code, error code and cause.
func NewAPIError(httpCode int, code ErrorCode, err error) *Error {
	apiErr := &Error{
		Code:       code,
		HTTPStatus: httpCode,
	}
	if err != nil {
		apiErr.Message = err.Error()
	}
	return apiErr
}

// errBadRequest builds a 400 Error with the given message.
func errBadRequest(message string) *Error {
	return &Error{
		Code:       ErrorCodeBadRequest,
		HTTPStatus: http.StatusBadRequest,
		Message:    message,
	}
}
