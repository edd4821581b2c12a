// Package errs provides the unified error type used across all of geori.
//
// Every subsystem (database, schema, postgis, filestore, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use the
// Is* predicates to handle errors without importing driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In the writer, keep the failing statement for diagnosis:
//	return errs.Wrap(errs.ErrKindWriteFailed, "batch 3 rejected", err).WithStatement(stmt)
//
//	// In a caller, check error kind:
//	if errs.IsUnknownColumn(err) {
//	    log.Fatal("input has a field the table does not")
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (Postgres, database/sql, MinIO, …) map their native errors to
// one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no table, no object
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure

	ErrKindUnsupportedColumnType   // coercion asked for a type outside the fixed set
	ErrKindUnknownColumn           // incoming field has no matching table column
	ErrKindAmbiguousGeometryColumn // table has more than one geometry column
	ErrKindUnmappedType            // database type absent from the type lookup
	ErrKindWriteFailed             // database rejected a batch statement
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
	case ErrKindUnsupportedColumnType:
		return "unsupported_column_type"
	case ErrKindUnknownColumn:
		return "unknown_column"
	case ErrKindAmbiguousGeometryColumn:
		return "ambiguous_geometry_column"
	case ErrKindUnmappedType:
		return "unmapped_type"
	case ErrKindWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all geori subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string

	// Statement is the SQL text that failed, when there is one.
	Statement string

	Cause error // original driver-level error, preserved for logging
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

// WithStatement attaches the failing SQL text and returns e.
func (e *Error) WithStatement(stmt string) *Error {
	e.Statement = stmt
	return e
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing table, missing object, …).
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure
// (SQL execution error, storage I/O error, …).
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

func IsUnsupportedColumnType(err error) bool {
	return KindOf(err) == ErrKindUnsupportedColumnType
}

func IsUnknownColumn(err error) bool {
	return KindOf(err) == ErrKindUnknownColumn
}

func IsAmbiguousGeometryColumn(err error) bool {
	return KindOf(err) == ErrKindAmbiguousGeometryColumn
}

func IsUnmappedType(err error) bool {
	return KindOf(err) == ErrKindUnmappedType
}

// IsWriteFailed reports whether a batch statement was rejected. Batches
// committed before the failing one are not rolled back.
func IsWriteFailed(err error) bool {
	return KindOf(err) == ErrKindWriteFailed
}

// KindOf extracts the ErrKind from the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// StatementOf returns the SQL text attached to the first *Error in the chain
// that carries one.
func StatementOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Statement != "" {
			return e.Statement
		}
		err = e.Cause
	}
	return ""
}
