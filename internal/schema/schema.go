package schema

import (
	"context"

	"github.com/koustreak/geori/internal/database"
)

// Reader is the interface for introspecting a PostGIS schema
type Reader interface {
	// ListTables returns all base tables in the given schema (e.g. "public")
	ListTables(ctx context.Context, schema string) ([]string, error)

	// TableExists checks whether a table exists
	TableExists(ctx context.Context, schema, table string) (bool, error)

	// Describe returns the column layout of a table
	Describe(ctx context.Context, schema, table string) (*Descriptor, error)

	// SRID returns the spatial reference of the table's geometry column
	SRID(ctx context.Context, d *Descriptor) (int, error)

	// GeometryType returns the declared type of the geometry column, e.g. MULTIPOLYGON
	GeometryType(ctx context.Context, d *Descriptor) (string, error)
}

var _ Reader = (*Introspector)(nil)

// Describe introspects name, given as "table" or "schema.table", over h.
// Tables without a schema prefix resolve in database.DefaultSchema.
func Describe(ctx context.Context, h database.Handle, name string) (*Descriptor, error) {
	s, t := database.SplitQualified(name, database.DefaultSchema)
	return NewIntrospector(h).Describe(ctx, s, t)
}
