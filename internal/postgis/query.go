package postgis

import (
	"strconv"
	"strings"

	"github.com/koustreak/geori/internal/database"
)

// QuerySpec selects what a read returns.
type QuerySpec struct {
	// Fields lists the columns to select. Empty means every non-geometry
	// column.
	Fields []string

	// IncludeGeometry appends the geometry column as WKT.
	IncludeGeometry bool

	// TargetSRID reprojects the geometry when non-zero.
	TargetSRID int

	// Where is appended verbatim after WHERE. It must be trusted input.
	Where string

	// Limit caps the row count when positive.
	Limit int
}

// BuildSelect renders spec as a SELECT statement. Row order is whatever
// the server returns.
func (t *Table) BuildSelect(spec QuerySpec) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(t.projection(spec), ", "))
	b.WriteString(" FROM ")
	b.WriteString(t.Name())
	if spec.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(spec.Where)
	}
	if spec.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(spec.Limit))
	}
	return b.String()
}

// projection returns the select-list entries for spec.
func (t *Table) projection(spec QuerySpec) []string {
	fields := spec.Fields
	if len(fields) == 0 {
		fields = t.desc.NonGeometryColumns()
	}

	cols := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		cols = append(cols, database.QuoteIdent(f))
	}

	if geom, ok := t.desc.GeometryColumn(); ok && spec.IncludeGeometry {
		g := database.QuoteIdent(geom)
		expr := g
		if spec.TargetSRID != 0 {
			expr = "ST_Transform(" + g + ", " + strconv.Itoa(spec.TargetSRID) + ")"
		}
		cols = append(cols, "ST_AsText("+expr+") AS "+g)
	}
	return cols
}
