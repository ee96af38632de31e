// Package errs provides the unified error type used across dataconn.
//
// Two families of errors flow out of the module. Rejections are produced by
// the command layer itself (a malformed command, a parameter value it cannot
// interpret, a conversion with no path, a bulk target that is not a table)
// and always carry one of the rejection kinds below. Failures reported by the
// database while running a statement are returned untouched, so callers can
// still errors.As them into *pgconn.PgError or *mysql.MySQLError.
//
// Usage:
//
//	n, err := database.Execute(ctx, conn, "DELETE FROM users WHERE id = @id", database.Arg(database.P("id", 7)))
//	switch {
//	case errs.IsRejected(err):
//	    // the call never reached the database
//	case err != nil:
//	    // the database refused the statement
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing driver-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no bucket
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure

	ErrKindInvalidCommand            // empty command text, duplicate parameter names
	ErrKindUnsupportedParameterShape // parameters the normalizer cannot interpret
	ErrKindConversion                // no conversion path between two types
	ErrKindRowMapping                // a result column cannot be stored in a field
	ErrKindInvalidTarget             // bulk/merge target is not a concrete table
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindInvalidCommand:
		return "invalid_command"
	case ErrKindUnsupportedParameterShape:
		return "unsupported_parameter_shape"
	case ErrKindConversion:
		return "conversion"
	case ErrKindRowMapping:
		return "row_mapping"
	case ErrKindInvalidTarget:
		return "invalid_target"
	default:
		return "unknown"
	}
}

// Error is the error type produced by dataconn itself.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// RowMappingError names the result column and the destination field that
// could not be bridged. It is the Cause of an ErrKindRowMapping error.
type RowMappingError struct {
	Column string
	Field  string
	Cause  error
}

func (e *RowMappingError) Error() string {
	return fmt.Sprintf("column %q -> field %s: %v", e.Column, e.Field, e.Cause)
}

func (e *RowMappingError) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// RowMapping wraps a column/field mismatch into an ErrKindRowMapping error.
func RowMapping(column, field string, cause error) *Error {
	return &Error{
		Kind:    ErrKindRowMapping,
		Message: "cannot map result row",
		Cause:   &RowMappingError{Column: column, Field: field, Cause: cause},
	}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

func IsInvalidCommand(err error) bool {
	return kindOf(err) == ErrKindInvalidCommand
}

func IsUnsupportedParameterShape(err error) bool {
	return kindOf(err) == ErrKindUnsupportedParameterShape
}

func IsConversion(err error) bool {
	return kindOf(err) == ErrKindConversion
}

func IsRowMapping(err error) bool {
	return kindOf(err) == ErrKindRowMapping
}

func IsInvalidTarget(err error) bool {
	return kindOf(err) == ErrKindInvalidTarget
}

// IsRejected reports whether err was raised by dataconn before or instead of
// the database running the statement.
func IsRejected(err error) bool {
	switch kindOf(err) {
	case ErrKindInvalidInput,
		ErrKindInvalidCommand,
		ErrKindUnsupportedParameterShape,
		ErrKindConversion,
		ErrKindRowMapping,
		ErrKindInvalidTarget:
		return true
	}
	return false
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
