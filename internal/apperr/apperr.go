package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a failure independently of the transport that reports it.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindTransient    Kind = "transient"
	KindInternal     Kind = "internal"
)

// Postgres SQLSTATE codes that signal a retryable store failure.
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgQueryCanceled        = "57014"
)

// Error carries a Kind and a human readable message. The wrapped cause, if
// any, is kept for logging and errors.Is/As chains.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.NotFound) works
// for any not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind-only sentinels for errors.Is comparisons.
var (
	Validation   = &Error{Kind: KindValidation}
	NotFound     = &Error{Kind: KindNotFound}
	InvalidState = &Error{Kind: KindInvalidState}
	Conflict     = &Error{Kind: KindConflict}
	Forbidden    = &Error{Kind: KindForbidden}
	Unauthorized = &Error{Kind: KindUnauthorized}
	Transient    = &Error{Kind: KindTransient}
)

// E builds a kinded error.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a kinded error around a cause.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf classifies err. Unkinded store errors that indicate lock waits,
// deadlocks or timeouts are reported as transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if IsRetryable(err) {
		return KindTransient
	}
	return KindInternal
}

// IsRetryable reports whether err is a lock/timeout failure that a caller
// may retry.
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure, pgQueryCanceled:
			return true
		}
	}
	return false
}

// Classify returns err unchanged when it already has a kind, otherwise wraps
// retryable store failures as transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if IsRetryable(err) {
		return Wrap(KindTransient, "store busy, retry later", err)
	}
	return err
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidState, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message for err. Internal and transient
// failures never leak their cause.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case KindInternal:
			return "internal server error"
		case KindTransient:
			return "service busy, please retry"
		}
		return ae.Msg
	}
	if IsRetryable(err) {
		return "service busy, please retry"
	}
	return "internal server error"
}
