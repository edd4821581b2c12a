package postgis

import (
	"context"
	"testing"

	"github.com/koustreak/geori/internal/database/dbtest"
	"github.com/stretchr/testify/require"
)

var columnCols = []string{"column_name", "data_type", "udt_name"}

// parcelsHandle scripts a public.parcels table with columns
// (id integer, name varchar, geom geometry(MULTIPOLYGON, 4326)).
func parcelsHandle() *dbtest.Handle {
	return dbtest.New().
		On("information_schema.columns", columnCols,
			[]any{"id", "integer", "int4"},
			[]any{"name", "character varying", "varchar"},
			[]any{"geom", "USER-DEFINED", "geometry"},
		).
		On("Find_SRID", []string{"srid"}, []any{int32(4326)}).
		On("geometry_columns", []string{"type"}, []any{"MULTIPOLYGON"}).
		On("SELECT EXISTS", []string{"exists"}, []any{true})
}

// openParcels returns a table handle over h with the introspection calls
// cleared from the recording.
func openParcels(t *testing.T, h *dbtest.Handle) *Table {
	t.Helper()
	tbl, err := NewDatabase(h, "").Table(context.Background(), "parcels")
	require.NoError(t, err)
	h.Calls = nil
	return tbl
}
