package postgis

import (
	"context"

	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/schema"
)

// Table is a handle to one PostGIS table. Its descriptor is fixed when the
// handle is created; SRID and geometry type are read from the catalog on
// every call.
type Table struct {
	db   *Database
	desc *schema.Descriptor
}

// NewTable binds an existing descriptor to db without introspecting.
func NewTable(db *Database, d *schema.Descriptor) *Table {
	return &Table{db: db, desc: d}
}

// Descriptor returns the table's column layout.
func (t *Table) Descriptor() *schema.Descriptor { return t.desc }

// Name returns the quoted schema-qualified table name.
func (t *Table) Name() string { return t.desc.QualifiedName() }

// SRID returns the SRID of the geometry column.
func (t *Table) SRID(ctx context.Context) (int, error) {
	return t.db.meta.SRID(ctx, t.desc)
}

// GeometryType returns the declared type of the geometry column.
func (t *Table) GeometryType(ctx context.Context) (string, error) {
	return t.db.meta.GeometryType(ctx, t.desc)
}

// Truncate empties the table, resets its identity sequences and commits.
func (t *Table) Truncate(ctx context.Context, cascade bool) error {
	stmt := "TRUNCATE " + t.Name() + " RESTART IDENTITY"
	if cascade {
		stmt += " CASCADE"
	}

	h := t.db.h
	log := logger.FromContext(ctx).ForTable(t.Name())
	if err := h.Exec(ctx, stmt); err != nil {
		if rbErr := h.Rollback(ctx); rbErr != nil {
			log.ErrorWith("rollback failed", rbErr, nil)
		}
		return err
	}
	if err := h.Commit(ctx); err != nil {
		return err
	}

	log.Debug("table truncated")
	return nil
}

// Query runs the SELECT built from spec. A spec that selects no columns
// is rejected with ErrKindInvalidInput.
func (t *Table) Query(ctx context.Context, spec QuerySpec) (database.Rows, error) {
	if len(t.projection(spec)) == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "query on %s selects no columns", t.Name())
	}
	return t.db.h.Query(ctx, t.BuildSelect(spec))
}
