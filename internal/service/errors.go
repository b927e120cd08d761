package service

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for the transport layer.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindValidation
	KindVersionConflict
	KindBusinessRule
	KindUnauthorized
	KindForbidden
	KindConflict
	KindLocked
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_error"
	case KindVersionConflict:
		return "version_conflict"
	case KindBusinessRule:
		return "business_rule_violation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindLocked:
		return "locked"
	}
	return "unknown"
}

// Error is an expected failure the caller can act on. Anything else a
// service returns is an internal error.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// WithDetail returns e with key set in its details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func BusinessRule(format string, args ...any) *Error {
	return newError(KindBusinessRule, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func Locked(format string, args ...any) *Error {
	return newError(KindLocked, format, args...)
}

// versionConflict reports a stale expected version.
func versionConflict(expected, current int) *Error {
	return newError(KindVersionConflict, "version conflict: expected %d, found %d", expected, current).
		WithDetail("expected_version", expected).
		WithDetail("current_version", current)
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
