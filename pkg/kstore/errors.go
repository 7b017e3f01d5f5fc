package kstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the closed taxonomy of error kinds the store surfaces.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindAlreadyExists      Kind = "AlreadyExists"
	KindInvalidName        Kind = "InvalidName"
	KindSchemaMismatch     Kind = "SchemaMismatch"
	KindForeignKeyViolation Kind = "ForeignKeyViolation"
	KindIntegrityViolation Kind = "IntegrityViolation"
	KindOracleFailure      Kind = "OracleFailure"
	KindInputInvalid       Kind = "InputInvalid"
	KindPermissionDenied   Kind = "PermissionDenied"
)

// Error wraps a causing error with a classified Kind and optional context,
// e.g. the offending FK column on a ForeignKeyViolation.
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WrapErr constructs a classified store Error.
func WrapErr(kind Kind, context string, err error) *Error {
	return &Error{Kind: kind, Context: context, Err: err}
}

// NotFound, AlreadyExists, etc. are convenience constructors used throughout
// the CRUD surface.
func NotFound(context string, err error) *Error      { return WrapErr(KindNotFound, context, err) }
func AlreadyExists(context string, err error) *Error { return WrapErr(KindAlreadyExists, context, err) }
func InvalidName(context string, err error) *Error    { return WrapErr(KindInvalidName, context, err) }
func SchemaMismatch(context string, err error) *Error { return WrapErr(KindSchemaMismatch, context, err) }
func ForeignKeyViolation(column string, err error) *Error {
	return WrapErr(KindForeignKeyViolation, column, err)
}
func IntegrityViolation(context string, err error) *Error {
	return WrapErr(KindIntegrityViolation, context, err)
}
func OracleFailure(context string, err error) *Error { return WrapErr(KindOracleFailure, context, err) }
func InputInvalid(context string, err error) *Error   { return WrapErr(KindInputInvalid, context, err) }
func PermissionDenied(context string, err error) *Error {
	return WrapErr(KindPermissionDenied, context, err)
}

// ClassifyError inspects a driver-level error and returns the Kind it maps
// to, so that raw sqlite/os errors crossing the store boundary can be
// wrapped consistently. Generalizes the teacher's ClassifyError (which
// mapped to a flat string taxonomy for metrics/traces) to the spec's
// nine-kind taxonomy.
func ClassifyError(err error) Kind {
	if err == nil {
		return ""
	}

	lower := strings.ToLower(err.Error())

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		return KindOracleFailure
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return KindOracleFailure
	}

	switch {
	case strings.Contains(lower, "unique constraint") || strings.Contains(lower, "already exists"):
		return KindAlreadyExists
	case strings.Contains(lower, "foreign key"):
		return KindForeignKeyViolation
	case strings.Contains(lower, "check constraint") || strings.Contains(lower, "constraint failed"):
		return KindIntegrityViolation
	case strings.Contains(lower, "no such table") || strings.Contains(lower, "no such column"):
		return KindSchemaMismatch
	case strings.Contains(lower, "no rows") || strings.Contains(lower, "not found"):
		return KindNotFound
	case strings.Contains(lower, "permission denied") || strings.Contains(lower, "access is denied"):
		return KindPermissionDenied
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "api error") || strings.Contains(lower, "openai") || strings.Contains(lower, "embedding"):
		return KindOracleFailure
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "required") || strings.Contains(lower, "must be"):
		return KindInputInvalid
	default:
		return KindIntegrityViolation
	}
}
