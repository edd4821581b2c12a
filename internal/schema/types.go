package schema

import (
	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
)

// ColumnType is the semantic kind a column is coerced as.
type ColumnType int

const (
	TypeNumeric ColumnType = iota + 1
	TypeText
	TypeDate
	TypeGeometry
)

func (t ColumnType) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeText:
		return "text"
	case TypeDate:
		return "date"
	case TypeGeometry:
		return "geometry"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name so descriptors serialize readably.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// rawTypes maps information_schema data_type values to semantic types.
// USER-DEFINED is resolved separately through udt_name.
var rawTypes = map[string]ColumnType{
	"integer":           TypeNumeric,
	"bigint":            TypeNumeric,
	"smallint":          TypeNumeric,
	"numeric":           TypeNumeric,
	"real":              TypeNumeric,
	"double precision":  TypeNumeric,
	"text":              TypeText,
	"character varying": TypeText,
	"character":         TypeText,
	"date":              TypeDate,
}

// ResolveType maps a raw column type to its semantic type. udt is only
// consulted for USER-DEFINED columns.
func ResolveType(dataType, udt string) (ColumnType, error) {
	if dataType == "USER-DEFINED" {
		if udt == "geometry" {
			return TypeGeometry, nil
		}
		return 0, errs.Newf(errs.ErrKindUnmappedType, "unmapped user-defined type %q", udt)
	}
	if t, ok := rawTypes[dataType]; ok {
		return t, nil
	}
	return 0, errs.Newf(errs.ErrKindUnmappedType, "unmapped column type %q", dataType)
}

// Column describes a single column in a table
type Column struct {
	Name    string     `json:"name"`
	RawType string     `json:"raw_type"`
	Type    ColumnType `json:"type"`
}

// Descriptor is the introspected shape of one table. It is built once per
// table handle and not refreshed, so it goes stale if the table is altered.
type Descriptor struct {
	Schema  string   `json:"schema"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`

	geom  string
	index map[string]int
}

// NewDescriptor validates columns and builds a Descriptor. More than one
// geometry column is rejected.
func NewDescriptor(schemaName, table string, columns []Column) (*Descriptor, error) {
	d := &Descriptor{
		Schema:  schemaName,
		Name:    table,
		Columns: columns,
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		d.index[c.Name] = i
		if c.Type != TypeGeometry {
			continue
		}
		if d.geom != "" {
			return nil, errs.Newf(errs.ErrKindAmbiguousGeometryColumn,
				"table %s has geometry columns %q and %q", d.QualifiedName(), d.geom, c.Name)
		}
		d.geom = c.Name
	}
	return d, nil
}

// GeometryColumn returns the name of the geometry column and whether the
// table has one.
func (d *Descriptor) GeometryColumn() (string, bool) {
	return d.geom, d.geom != ""
}

// NonGeometryColumns returns the names of every other column, in table order.
func (d *Descriptor) NonGeometryColumns() []string {
	out := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.Type != TypeGeometry {
			out = append(out, c.Name)
		}
	}
	return out
}

// Lookup returns the column called name.
func (d *Descriptor) Lookup(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.Columns[i], true
}

// QualifiedName renders the quoted schema.table reference.
func (d *Descriptor) QualifiedName() string {
	return database.QualifiedName(d.Schema, d.Name)
}
