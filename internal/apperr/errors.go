// Package apperr defines the tagged error kinds shared by every layer of the
// gateway. Components convert raw backend, validation and provider errors
// into an *Error at their own boundary so that callers branch on the Kind
// instead of on low-level error types.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed caller input.
	KindValidation
	// KindDuplicatePhone marks a registration collision on the phone number.
	KindDuplicatePhone
	// KindNotFound marks a missing row for a renew/revoke/lookup.
	KindNotFound
	// KindUnauthorized marks a missing, invalid or expired session binding.
	KindUnauthorized
	// KindStorageUnavailable marks any persistence backend failure.
	KindStorageUnavailable
	// KindGateway marks a failure of the model provider call.
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicatePhone:
		return "duplicate_phone"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindGateway:
		return "gateway"
	}
	return "unknown"
}

// Error is a classified failure. Msg is safe to show to callers for
// validation and unauthorized kinds; Err holds the internal cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Validation is shorthand for a KindValidation error with a corrective message.
func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

// Storage wraps a backend failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Op: op, Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain, or
// KindUnknown when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified with kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the public message carried by err, or "" when none.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return ""
}
