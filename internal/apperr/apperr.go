// Package apperr defines the small, closed taxonomy of domain errors the
// core subsystems raise. HTTP handlers translate a *Error into a status
// code and a safe public message; they never leak a raw Go error or a
// stack trace to a client.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the seven error categories the spec defines.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindNotAuthorized    Kind = "not_authorized"
	KindInvalidInput     Kind = "invalid_input"
	KindConflict         Kind = "conflict"
	KindDriverUnavailable Kind = "driver_unavailable"
	KindDriverFailure    Kind = "driver_failure"
	KindInternal         Kind = "internal"
)

// Error is the error type every handler-reachable function returns instead
// of an ad-hoc fmt.Errorf when the failure needs to cross the HTTP
// boundary with a specific status code.
type Error struct {
	Kind    Kind
	Message string
	Op      string // operation that failed, e.g. "ContainerStore.Create"
	Err     error  // wrapped cause, never rendered to the client
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error's Kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindDriverUnavailable:
		return http.StatusServiceUnavailable
	case KindDriverFailure:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func new_(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// NotFound builds a KindNotFound error.
func NotFound(op, msg string) *Error { return new_(KindNotFound, op, msg, nil) }

// NotAuthorized builds a KindNotAuthorized error.
func NotAuthorized(op, msg string) *Error { return new_(KindNotAuthorized, op, msg, nil) }

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(op, msg string) *Error { return new_(KindInvalidInput, op, msg, nil) }

// Conflict builds a KindConflict error.
func Conflict(op, msg string) *Error { return new_(KindConflict, op, msg, nil) }

// DriverUnavailable builds a KindDriverUnavailable error.
func DriverUnavailable(op, msg string, err error) *Error {
	return new_(KindDriverUnavailable, op, msg, err)
}

// DriverFailure builds a KindDriverFailure error.
func DriverFailure(op, msg string, err error) *Error {
	return new_(KindDriverFailure, op, msg, err)
}

// Internal builds a KindInternal error, wrapping the unclassified cause.
func Internal(op string, err error) *Error {
	return new_(KindInternal, op, "internal error", err)
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to KindInternal for anything else.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// As is a small wrapper around errors.As for callers that only want the
// *Error without importing the stdlib errors package themselves.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
