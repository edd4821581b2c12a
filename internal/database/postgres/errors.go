package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/geori/internal/errs"
)

// PostgreSQL SQLSTATE codes and classes the write and read paths care about.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection       = "08"
	pgClassInvalidAuth      = "28"
	pgErrUndefinedTable     = "42P01"
	pgErrInsufficientPrivil = "42501"
	pgErrQueryCanceled      = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classify(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classify maps a SQLSTATE code to an ErrKind.
func classify(code string) errs.ErrKind {
	switch code {
	case pgErrUndefinedTable:
		return errs.ErrKindNotFound
	case pgErrInsufficientPrivil:
		return errs.ErrKindPermissionDenied
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	}
	if len(code) >= 2 {
		switch code[:2] {
		case pgClassConnection:
			return errs.ErrKindConnectionFailed
		case pgClassInvalidAuth:
			return errs.ErrKindPermissionDenied
		}
	}
	return errs.ErrKindQueryFailed
}
