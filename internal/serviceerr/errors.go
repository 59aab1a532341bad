// Package serviceerr defines the errors surfaced by the service and
// the HTTP status each of them maps to.
package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeMissingParameter    Code = "missing_parameter"
	CodeNotAuthenticated    Code = "not_authenticated"
	CodeTokenFetchFailed    Code = "token_fetch_failed"
	CodeResourceFetchFailed Code = "resource_fetch_failed"
	CodeStorageWriteFailed  Code = "storage_write_failed"
	CodeUnknown             Code = "unknown"
)

var ErrNotFound = errors.New("not found")

var (
	ErrMissingParameter = &Error{Code: CodeMissingParameter, Description: "missing authorization code or verifier"}
	ErrNotAuthenticated = &Error{Code: CodeNotAuthenticated, Description: "must complete OAuth flow first"}
	ErrTokenFetch       = &Error{Code: CodeTokenFetchFailed, Description: "token fetch failed"}
	ErrResourceFetch    = &Error{Code: CodeResourceFetchFailed, Description: "fetch failed"}
	ErrStorageWrite     = &Error{Code: CodeStorageWriteFailed, Description: "store failed"}
	ErrUnknown          = &Error{Code: CodeUnknown, Description: "internal error"}
)

// Error is a service error. Two errors are considered equal by errors.Is
// when their codes match, so a wrapped copy still matches its template.
type Error struct {
	Code        Code
	Description string
	Cause       error
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{
		Code:        e.Code,
		Description: e.Description,
		Cause:       cause,
	}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Description
	}

	return e.Description + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Code == e.Code
}

// HTTPStatus returns the status code a handler should answer with.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeMissingParameter, CodeNotAuthenticated:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP maps any error to a status and a plain text message. Errors that
// are not service errors are reported as unknown with their message.
func ToHTTP(err error) (status int, message string) {
	var serviceErr *Error
	if !errors.As(err, &serviceErr) {
		serviceErr = ErrUnknown.Wrap(err)
	}

	return serviceErr.HTTPStatus(), serviceErr.Error()
}
