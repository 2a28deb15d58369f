package archiver

import (
	"errors"
	"fmt"
)

// Kind classifies a handler failure. The executor maps each kind to exactly
// one archive status transition.
type Kind string

const (
	// KindTransient covers network failures, 5xx responses, rate limits and
	// handler crashes. Retried with backoff up to the configured ceiling.
	KindTransient Kind = "transient"
	// KindHTTPClient is a non-auth 4xx. Recorded with the status code and
	// retried a bounded number of times before terminal failure.
	KindHTTPClient Kind = "http_client"
	// KindAuthRequired means the platform returned a login wall or the
	// handler needs cookies. Terminal until an operator intervenes.
	KindAuthRequired Kind = "auth_required"
	// KindSkipped is a handler-declared permanent skip (unsupported media).
	KindSkipped Kind = "skipped"
	// KindInvalidInput is a malformed URL or unsupported scheme. Not retried.
	KindInvalidInput Kind = "invalid_input"
)

// Error is the rich error handlers return. The executor classifies it and
// writes exactly one status-update statement.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (http %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retriable failure.
func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

// HTTPError classifies a non-2xx response. 5xx and 429 are transient; 401
// and 403 are auth walls; other 4xx are client errors.
func HTTPError(status int, msg string) *Error {
	kind := KindHTTPClient
	switch {
	case status >= 500 || status == 429:
		kind = KindTransient
	case status == 401 || status == 403:
		kind = KindAuthRequired
	}
	return &Error{Kind: kind, Message: msg, HTTPStatus: status}
}

// AuthRequired signals a login wall or missing cookies.
func AuthRequired(msg string) *Error {
	return &Error{Kind: KindAuthRequired, Message: msg}
}

// Skip signals a permanent, non-retriable skip.
func Skip(msg string) *Error {
	return &Error{Kind: KindSkipped, Message: msg}
}

// InvalidInput signals a malformed or unsupported URL.
func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

// Classify extracts the Kind and HTTP status from any error. Unknown errors
// are treated as transient so a crashing handler never poisons an archive.
func Classify(err error) (Kind, int) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, ae.HTTPStatus
	}
	return KindTransient, 0
}
