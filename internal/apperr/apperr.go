// Package apperr defines the error kinds shared by the scheduling packages.
// Callers branch on the kind, not on message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	NotFound       Kind = "not_found"
	NotAvailable   Kind = "not_available"
	Conflict       Kind = "conflict"
	InvalidStatus  Kind = "invalid_status"
	InvalidRequest Kind = "invalid_request"
	Unavailable    Kind = "unavailable"
)

// Error is a typed application error. Code is a stable machine readable
// identifier such as "doctor_not_found".
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so wrapped copies of a sentinel still satisfy
// errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Wrap returns a copy of sentinel with a more specific message.
func Wrap(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: fmt.Sprintf(format, args...)}
}

// Infra wraps a storage or transport failure.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: Unavailable, Code: "unavailable", Msg: op, Err: err}
}

// KindOf returns the kind of err. Errors that carry no kind are reported as
// Unavailable so callers never mistake them for business outcomes.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unavailable
}

// CodeOf returns the code of err, or "internal_error".
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return "internal_error"
}
