package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
)

// Driver is a PostgreSQL implementation of database.Handle backed by a single
// pgx connection. Statements are literal SQL sent over the simple protocol.
//
// Driver is not safe for concurrent use.
type Driver struct {
	conn *pgx.Conn
	tx   pgx.Tx
}

var _ database.Handle = (*Driver)(nil)

// querier is the subset shared by *pgx.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Connect opens a connection using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func Connect(ctx context.Context, cfg *database.Config) (*Driver, error) {
	connCfg, err := pgx.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	connCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, mapError(err, "failed to connect")
	}

	d := New(conn)
	if err := d.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return d, nil
}

// New wraps an already established connection. The Driver takes ownership:
// Close closes conn.
func New(conn *pgx.Conn) *Driver {
	return &Driver{conn: conn}
}

// --- database.Handle implementation ---

// Ping verifies the server is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Exec runs stmt inside the current transaction, opening one if needed.
func (d *Driver) Exec(ctx context.Context, stmt string) error {
	if d.tx == nil {
		tx, err := d.conn.Begin(ctx)
		if err != nil {
			return mapError(err, "failed to begin transaction")
		}
		d.tx = tx
	}
	if _, err := d.tx.Exec(ctx, stmt); err != nil {
		return mapError(err, "exec failed").WithStatement(stmt)
	}
	return nil
}

// Fetch runs stmt and collects every row into a map keyed by column name.
func (d *Driver) Fetch(ctx context.Context, stmt string) ([]map[string]any, error) {
	rows, err := d.querier().Query(ctx, stmt)
	if err != nil {
		return nil, mapError(err, "query failed").WithStatement(stmt)
	}
	result, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapError(err, "failed to collect rows").WithStatement(stmt)
	}
	if result == nil {
		result = make([]map[string]any, 0)
	}
	return result, nil
}

// Query runs stmt and returns a lazy result set.
func (d *Driver) Query(ctx context.Context, stmt string) (database.Rows, error) {
	rows, err := d.querier().Query(ctx, stmt)
	if err != nil {
		return nil, mapError(err, "query failed").WithStatement(stmt)
	}
	return &pgxRows{rows: rows}, nil
}

// Commit commits the open transaction, if any.
func (d *Driver) Commit(ctx context.Context) error {
	if d.tx == nil {
		return nil
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "commit failed")
	}
	return nil
}

// Rollback aborts the open transaction, if any.
func (d *Driver) Rollback(ctx context.Context) error {
	if d.tx == nil {
		return nil
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Rollback(ctx); err != nil {
		return mapError(err, "rollback failed")
	}
	return nil
}

// Close rolls back any open transaction and closes the connection.
func (d *Driver) Close(ctx context.Context) error {
	rbErr := d.Rollback(ctx)
	if err := d.conn.Close(ctx); err != nil {
		return mapError(err, "close failed")
	}
	return rbErr
}

func (d *Driver) querier() querier {
	if d.tx != nil {
		return d.tx
	}
	return d.conn
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Close()     { r.rows.Close() }

func (r *pgxRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "error iterating rows")
	}
	return nil
}

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}
