package schema

import (
	"context"
	"fmt"
	"strconv"

	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
)

// Introspector implements Reader over information_schema and the PostGIS
// catalog. Every metadata method issues its query on each call; nothing is
// cached.
type Introspector struct {
	h database.Handle
}

// NewIntrospector creates an introspector that reads through h.
func NewIntrospector(h database.Handle) *Introspector {
	return &Introspector{h: h}
}

// ListTables returns all base table names in the given schema
func (p *Introspector) ListTables(ctx context.Context, schema string) ([]string, error) {
	q := fmt.Sprintf(`SELECT table_name FROM information_schema.tables `+
		`WHERE table_schema = %s AND table_type = 'BASE TABLE' ORDER BY table_name`,
		database.QuoteLiteral(schema))

	rows, err := p.h.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, toString(r["table_name"]))
	}
	return tables, nil
}

// TableExists checks whether a specific table exists
func (p *Introspector) TableExists(ctx context.Context, schema, table string) (bool, error) {
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM information_schema.tables `+
		`WHERE table_schema = %s AND table_name = %s) AS exists`,
		database.QuoteLiteral(schema), database.QuoteLiteral(table))

	rows, err := p.h.Fetch(ctx, q)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	exists, _ := rows[0]["exists"].(bool)
	return exists, nil
}

// Describe reads the column list of schema.table and maps every raw type to
// a semantic type.
func (p *Introspector) Describe(ctx context.Context, schema, table string) (*Descriptor, error) {
	q := fmt.Sprintf(`SELECT column_name, data_type, udt_name FROM information_schema.columns `+
		`WHERE table_schema = %s AND table_name = %s ORDER BY ordinal_position`,
		database.QuoteLiteral(schema), database.QuoteLiteral(table))

	rows, err := p.h.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found or has no columns", schema, table)
	}

	columns := make([]Column, 0, len(rows))
	for _, r := range rows {
		name := toString(r["column_name"])
		raw := toString(r["data_type"])
		udt := toString(r["udt_name"])
		t, err := ResolveType(raw, udt)
		if err != nil {
			return nil, errs.Newf(errs.ErrKindUnmappedType,
				"column %s.%s.%s has unmapped type %q (%s)", schema, table, name, raw, udt)
		}
		columns = append(columns, Column{Name: name, RawType: raw, Type: t})
	}
	return NewDescriptor(schema, table, columns)
}

// SRID looks up the SRID registered for the geometry column of d.
func (p *Introspector) SRID(ctx context.Context, d *Descriptor) (int, error) {
	geom, ok := d.GeometryColumn()
	if !ok {
		return 0, errs.Newf(errs.ErrKindInvalidInput, "table %s has no geometry column", d.QualifiedName())
	}
	q := fmt.Sprintf(`SELECT Find_SRID(%s, %s, %s) AS srid`,
		database.QuoteLiteral(d.Schema), database.QuoteLiteral(d.Name), database.QuoteLiteral(geom))

	rows, err := p.h.Fetch(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errs.Newf(errs.ErrKindNotFound, "no SRID registered for %s.%s", d.QualifiedName(), geom)
	}
	srid, err := toInt(rows[0]["srid"])
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindQueryFailed, "unexpected SRID value", err).WithStatement(q)
	}
	return srid, nil
}

// GeometryType returns the declared geometry type of d's geometry column as
// recorded in geometry_columns.
func (p *Introspector) GeometryType(ctx context.Context, d *Descriptor) (string, error) {
	geom, ok := d.GeometryColumn()
	if !ok {
		return "", errs.Newf(errs.ErrKindInvalidInput, "table %s has no geometry column", d.QualifiedName())
	}
	q := fmt.Sprintf(`SELECT type FROM geometry_columns `+
		`WHERE f_table_schema = %s AND f_table_name = %s AND f_geometry_column = %s`,
		database.QuoteLiteral(d.Schema), database.QuoteLiteral(d.Name), database.QuoteLiteral(geom))

	rows, err := p.h.Fetch(ctx, q)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", errs.Newf(errs.ErrKindNotFound, "%s.%s is not registered in geometry_columns", d.QualifiedName(), geom)
	}
	return toString(rows[0]["type"]), nil
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	case []byte:
		return strconv.Atoi(string(n))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}
