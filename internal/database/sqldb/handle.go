// Package sqldb implements database.Handle on top of database/sql.
//
// Use it when the caller already holds a *sql.DB, or to reach PostGIS through
// the pgx database/sql driver:
//
//	h, err := sqldb.Open(ctx, database.DefaultConfig(dsn))
//	if err != nil { ... }
//	defer h.Close(ctx)
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register "pgx" driver
	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
)

// DriverName is the database/sql driver Open uses.
const DriverName = "pgx"

// Handle is a database.Handle backed by *sql.DB. Open pins the pool to one
// connection so that a transaction opened by Exec and the statements that
// follow it run on the same session.
//
// Handle is not safe for concurrent use.
type Handle struct {
	db    *sql.DB
	tx    *sql.Tx
	owned bool
}

var _ database.Handle = (*Handle)(nil)

// Open opens a database/sql pool with a single connection and pings it.
func Open(ctx context.Context, cfg *database.Config) (*Handle, error) {
	db, err := sql.Open(DriverName, cfg.ConnString())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &Handle{db: db, owned: true}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := h.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// New wraps a pool owned by the caller. Close ends any open transaction but
// leaves db open.
func New(db *sql.DB) *Handle {
	return &Handle{db: db}
}

func (h *Handle) Ping(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		e := mapError(err, "ping failed")
		if e.Kind == errs.ErrKindQueryFailed {
			e.Kind = errs.ErrKindConnectionFailed
		}
		return e
	}
	return nil
}

func (h *Handle) Exec(ctx context.Context, stmt string) error {
	if h.tx == nil {
		tx, err := h.db.BeginTx(ctx, nil)
		if err != nil {
			return mapError(err, "failed to begin transaction")
		}
		h.tx = tx
	}
	if _, err := h.tx.ExecContext(ctx, stmt); err != nil {
		return mapError(err, "exec failed").WithStatement(stmt)
	}
	return nil
}

func (h *Handle) Fetch(ctx context.Context, stmt string) ([]map[string]any, error) {
	rows, err := h.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	result, err := database.ScanRows(rows)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			e.WithStatement(stmt)
		}
		return nil, err
	}
	return result, nil
}

func (h *Handle) Query(ctx context.Context, stmt string) (database.Rows, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if h.tx != nil {
		rows, err = h.tx.QueryContext(ctx, stmt)
	} else {
		rows, err = h.db.QueryContext(ctx, stmt)
	}
	if err != nil {
		return nil, mapError(err, "query failed").WithStatement(stmt)
	}
	return &sqlRows{rows: rows}, nil
}

func (h *Handle) Commit(_ context.Context) error {
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Commit(); err != nil {
		return mapError(err, "commit failed")
	}
	return nil
}

func (h *Handle) Rollback(_ context.Context) error {
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Rollback(); err != nil {
		return mapError(err, "rollback failed")
	}
	return nil
}

func (h *Handle) Close(ctx context.Context) error {
	rbErr := h.Rollback(ctx)
	if h.owned {
		if err := h.db.Close(); err != nil {
			return mapError(err, "close failed")
		}
	}
	return rbErr
}

// --- *sql.Rows wrapper ---

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }

func (r *sqlRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

func (r *sqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "error iterating rows")
	}
	return nil
}

// --- error mapping ---

// mapError translates database/sql errors into *errs.Error. Server errors
// surfaced by the pgx driver keep their SQLSTATE-based classification.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	if errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			kind = errs.ErrKindConnectionFailed
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
