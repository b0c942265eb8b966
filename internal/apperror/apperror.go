// Package apperror defines the small closed set of error kinds the server
// translates into HTTP/WS/SSE responses. Handlers return *Error for expected
// failure modes; anything else is an unexpected error that api.WriteAppError
// turns into a generic 500 without logging it. Panics are caught separately
// by the api.Recoverer middleware, which logs the panic value and returns 500.
package apperror

import "net/http"

// Code identifies one of the error kinds from the propagation policy.
type Code string

const (
	CodeBadInput            Code = "bad_input"
	CodeAuthFailed          Code = "auth_failed"
	CodeForbidden           Code = "forbidden"
	CodeNotFound            Code = "not_found"
	CodeConflict            Code = "conflict"
	CodeRangeNotSatisfiable Code = "range_not_satisfiable"
	CodeClientCancelled     Code = "client_cancelled"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeServiceDisabled     Code = "service_disabled"
	CodeUpstreamTimeout     Code = "upstream_timeout"
	CodeEngineFailure       Code = "engine_failure"
)

// Error is the typed error every handler-facing package should return for an
// expected failure. It carries enough to pick an HTTP status without the
// handler needing to know the kind's string form.
type Error struct {
	Code    Code
	Status  int
	Message string
	// Err, when set, is the underlying cause. Not included in the HTTP body.
	Err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func new(code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

func BadInput(msg string) *Error            { return new(CodeBadInput, http.StatusBadRequest, msg) }
func AuthFailed(msg string) *Error          { return new(CodeAuthFailed, http.StatusUnauthorized, msg) }
func Forbidden(msg string) *Error           { return new(CodeForbidden, http.StatusForbidden, msg) }
func NotFound(msg string) *Error            { return new(CodeNotFound, http.StatusNotFound, msg) }
func Conflict(msg string) *Error            { return new(CodeConflict, http.StatusConflict, msg) }
func RangeNotSatisfiable(msg string) *Error {
	return new(CodeRangeNotSatisfiable, http.StatusRequestedRangeNotSatisfiable, msg)
}

// ClientCancelled maps to the non-standard 499 (client closed request / cancelled),
// matching the spec's status for an explicitly cancelled transcription job.
func ClientCancelled(msg string) *Error { return new(CodeClientCancelled, 499, msg) }

func UpstreamUnavailable(msg string) *Error {
	return new(CodeUpstreamUnavailable, http.StatusBadGateway, msg)
}
func ServiceDisabled(msg string) *Error {
	return new(CodeServiceDisabled, http.StatusServiceUnavailable, msg)
}
func UpstreamTimeout(msg string) *Error {
	return new(CodeUpstreamTimeout, http.StatusGatewayTimeout, msg)
}
func EngineFailure(msg string) *Error {
	return new(CodeEngineFailure, http.StatusInternalServerError, msg)
}

// Wrap attaches an underlying cause to an *Error without losing its kind/status.
func Wrap(e *Error, cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	if ae, ok := err.(*Error); ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}
