// Package database defines the connection contract the write and read paths
// talk to. Statements are always literal, fully interpolated SQL text; no
// bound parameters cross this boundary.
package database

import "context"

// Handle owns one live connection. It is the only type that talks to the
// server; table handles and descriptors hold a non-owning reference to it and
// must not outlive it.
//
// A Handle is NOT safe for concurrent use. At most one read or write may be in
// flight at a time; callers sharing a Handle must serialize access.
type Handle interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Exec runs a statement that returns no rows. The first Exec after a
	// Commit or Rollback opens a new transaction.
	Exec(ctx context.Context, stmt string) error

	// Fetch runs a statement and returns every row keyed by column name.
	// The returned slice is non-nil.
	Fetch(ctx context.Context, stmt string) ([]map[string]any, error)

	// Query runs a statement and returns a lazy result set.
	Query(ctx context.Context, stmt string) (Rows, error)

	// Commit commits the open transaction. It is a no-op when none is open.
	Commit(ctx context.Context) error

	// Rollback aborts the open transaction. It is a no-op when none is open.
	Rollback(ctx context.Context) error

	// Close rolls back any open transaction and releases the connection.
	Close(ctx context.Context) error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}
