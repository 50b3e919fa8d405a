// Package errors defines the typed failures surfaced by the networking services
// and their translation to transport status codes.
package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"gorm.io/gorm"
)

// Kind classifies a failure for callers.
type Kind string

const (
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindTransient    Kind = "transient"
	KindInvalid      Kind = "invalid"
)

// Error carries a Kind, the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Conflict(op, msg string) error     { return newErr(KindConflict, op, msg) }
func NotFound(op, msg string) error     { return newErr(KindNotFound, op, msg) }
func Unauthorized(op, msg string) error { return newErr(KindUnauthorized, op, msg) }
func Invalid(op, msg string) error      { return newErr(KindInvalid, op, msg) }

// Transient wraps a retryable infrastructure failure.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// KindOf returns the Kind of err, or "" when err is not a typed error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// FromStore classifies an error returned by the store.
//   - typed errors pass through unchanged
//   - gorm.ErrRecordNotFound becomes NotFound
//   - timeouts, cancellation and broken connections become Transient
//
// Anything else is wrapped with op and left untyped.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Op: op, Msg: "record not found", Err: err}
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.As(err, &netErr):
		return Transient(op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
