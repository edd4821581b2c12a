// Package postgis moves row streams into and out of PostGIS tables using
// literal SQL: batched multi-row INSERTs on the way in, SELECTs with WKT
// extraction on the way out.
//
//	db := postgis.NewDatabase(h, "")
//	tbl, err := db.Table(ctx, "parcels")
//	if err != nil { ... }
//	stats, err := tbl.Write(ctx, src, postgis.WriteOptions{BatchSize: 500})
//
// A Database and its Tables borrow the handle; they are not safe for
// concurrent use and must not outlive it.
package postgis

import (
	"context"

	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/rowsource"
	"github.com/koustreak/geori/internal/schema"
)

// Database resolves table handles over a single database.Handle.
type Database struct {
	h      database.Handle
	meta   schema.Reader
	schema string
}

// NewDatabase wraps h. Unqualified table names resolve in defaultSchema,
// or database.DefaultSchema when it is empty.
func NewDatabase(h database.Handle, defaultSchema string) *Database {
	if defaultSchema == "" {
		defaultSchema = database.DefaultSchema
	}
	return &Database{h: h, meta: schema.NewIntrospector(h), schema: defaultSchema}
}

// Handle returns the underlying handle.
func (db *Database) Handle() database.Handle { return db.h }

// Schema returns the schema used for unqualified names.
func (db *Database) Schema() string { return db.schema }

// Table introspects name ("table" or "schema.table") and returns a handle
// bound to the resulting descriptor.
func (db *Database) Table(ctx context.Context, name string) (*Table, error) {
	s, t := database.SplitQualified(name, db.schema)
	return db.open(ctx, s, t)
}

func (db *Database) open(ctx context.Context, schemaName, table string) (*Table, error) {
	d, err := db.meta.Describe(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	return &Table{db: db, desc: d}, nil
}

// Tables lists the base tables in schemaName, or the default schema when
// it is empty.
func (db *Database) Tables(ctx context.Context, schemaName string) ([]string, error) {
	if schemaName == "" {
		schemaName = db.schema
	}
	return db.meta.ListTables(ctx, schemaName)
}

// Load replaces the contents of table with src: the table is truncated and
// src written into it. Missing tables are not created.
func Load(ctx context.Context, db *Database, src rowsource.Source, table string, opts WriteOptions) (WriteStats, error) {
	s, t := database.SplitQualified(table, db.schema)
	ok, err := db.meta.TableExists(ctx, s, t)
	if err != nil {
		return WriteStats{}, err
	}
	if !ok {
		return WriteStats{}, errs.Newf(errs.ErrKindNotFound,
			"table %s does not exist; create it before loading", database.QualifiedName(s, t))
	}

	tbl, err := db.open(ctx, s, t)
	if err != nil {
		return WriteStats{}, err
	}

	logger.FromContext(ctx).ForTable(tbl.Name()).Info("truncating before load")

	if err := tbl.Truncate(ctx, false); err != nil {
		return WriteStats{}, err
	}
	return tbl.Write(ctx, src, opts)
}

// Extract runs a SELECT built from spec against table and returns the
// result as a row source. The caller must Close it.
func Extract(ctx context.Context, db *Database, table string, spec QuerySpec) (rowsource.Source, error) {
	tbl, err := db.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := tbl.Query(ctx, spec)
	if err != nil {
		return nil, err
	}
	return rowsource.FromRows(rows)
}
