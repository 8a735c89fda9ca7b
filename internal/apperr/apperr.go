// Package apperr holds the error taxonomy shared by every layer of the service.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindUpstream
	KindAuth
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

func Validation(code, format string, args ...any) *Error {
	return New(KindValidation, code, fmt.Errorf(format, args...))
}

func NotFound(code, format string, args ...any) *Error {
	return New(KindNotFound, code, fmt.Errorf(format, args...))
}

// Upstream wraps a failure of an external collaborator (object storage, directories).
func Upstream(code string, err error) *Error {
	return New(KindUpstream, code, err)
}

func Auth(code, format string, args ...any) *Error {
	return New(KindAuth, code, fmt.Errorf(format, args...))
}

func Conflict(code, format string, args ...any) *Error {
	return New(KindConflict, code, fmt.Errorf(format, args...))
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// Code returns the code of the first *Error in err's chain, or "".
func Code(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

var (
	ErrOrderNotFound        = NotFound("order_not_found", "order not found")
	ErrMemberNotInOrder     = NotFound("member_not_in_order", "user not found in order")
	ErrItineraryNotFound    = NotFound("itinerary_not_found", "itinerary not found")
	ErrUserNotFound         = NotFound("user_not_found", "user not found")
	ErrUnsupportedMediaType = Validation("unsupported_media_type", "invalid file type, only JPEG, PNG and GIF images are allowed")
	ErrPayloadTooLarge      = Validation("payload_too_large", "file size exceeds 100MB limit")
	ErrOrderIDConflict      = Conflict("order_id_conflict", "order id is already used by a different order")
)
