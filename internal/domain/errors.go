package domain

import (
	"errors"
	"strings"
)

// Sentinel error kinds. Every error produced by the core wraps exactly one of
// these so callers can classify failures with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthorization = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrPersistence   = errors.New("persistence failure")
	ErrProtocol      = errors.New("protocol error")
)

// Error carries the kind of a failure together with where it happened.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// Op names the operation that failed, e.g. "chat.Send".
	Op string
	// Field is the offending input field for validation failures.
	Field string
	// Msg is a human readable description safe to return to clients.
	Msg string
	// Err is the underlying cause, if any. It is not shown to clients.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Message returns the client-facing part of the error.
func (e *Error) Message() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Field != "" {
		return e.Field + " " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Validation reports malformed or missing input.
func Validation(op, field, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Field: field, Msg: msg}
}

// Authorization reports an acting identity without permission.
func Authorization(op, msg string) error {
	return &Error{Kind: ErrAuthorization, Op: op, Msg: msg}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(op, msg string) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: msg}
}

// Persistence wraps a durable store failure.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) && de.Kind != nil {
		return err
	}
	return &Error{Kind: ErrPersistence, Op: op, Msg: "storage unavailable", Err: err}
}

// Protocol reports a malformed event shape.
func Protocol(op, msg string) error {
	return &Error{Kind: ErrProtocol, Op: op, Msg: msg}
}

// KindOf returns the sentinel kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrAuthorization, ErrNotFound, ErrPersistence, ErrProtocol} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// PublicMessage returns the text of err that may be shown to a client.
// Errors without a kind are reported generically.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message()
	}
	if kind := KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal error"
}
