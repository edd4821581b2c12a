package postgis

import (
	"context"
	"testing"

	"github.com/koustreak/geori/internal/database/dbtest"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	tbl := openParcels(t, parcelsHandle())

	tests := []struct {
		name string
		spec QuerySpec
		want string
	}{
		{
			name: "all non-geometry columns",
			spec: QuerySpec{},
			want: "SELECT id, name FROM public.parcels",
		},
		{
			name: "with geometry",
			spec: QuerySpec{IncludeGeometry: true},
			want: "SELECT id, name, ST_AsText(geom) AS geom FROM public.parcels",
		},
		{
			name: "reprojected geometry",
			spec: QuerySpec{IncludeGeometry: true, TargetSRID: 3857},
			want: "SELECT id, name, ST_AsText(ST_Transform(geom, 3857)) AS geom FROM public.parcels",
		},
		{
			name: "field subset",
			spec: QuerySpec{Fields: []string{"name"}},
			want: "SELECT name FROM public.parcels",
		},
		{
			name: "where and limit",
			spec: QuerySpec{Where: "x > 1", Limit: 10},
			want: "SELECT id, name FROM public.parcels WHERE x > 1 LIMIT 10",
		},
		{
			name: "quoted identifiers",
			spec: QuerySpec{Fields: []string{"Owner Name", "order"}},
			want: `SELECT "Owner Name", "order" FROM public.parcels`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tbl.BuildSelect(tt.spec))
		})
	}
}

func TestBuildSelect_ClauseEdges(t *testing.T) {
	tbl := openParcels(t, parcelsHandle())

	assert.NotContains(t, tbl.BuildSelect(QuerySpec{Limit: 0}), "LIMIT")
	assert.NotContains(t, tbl.BuildSelect(QuerySpec{Limit: -1}), "LIMIT")
	assert.NotContains(t, tbl.BuildSelect(QuerySpec{}), "WHERE")
	assert.NotContains(t, tbl.BuildSelect(QuerySpec{}), "ORDER BY")
}

func TestBuildSelect_TableWithoutGeometry(t *testing.T) {
	d, err := schema.NewDescriptor("Survey Data", "owners", []schema.Column{
		{Name: "id", Type: schema.TypeNumeric},
		{Name: "full_name", Type: schema.TypeText},
	})
	require.NoError(t, err)
	tbl := NewTable(NewDatabase(nil, ""), d)

	assert.Equal(t, `SELECT id, full_name FROM "Survey Data".owners`,
		tbl.BuildSelect(QuerySpec{IncludeGeometry: true, TargetSRID: 3857}))
}

func TestTable_Query(t *testing.T) {
	h := parcelsHandle().On("FROM public.parcels", []string{"id", "geom"}, []any{int64(1), "POINT(0 0)"})
	tbl := openParcels(t, h)

	rows, err := tbl.Query(context.Background(), QuerySpec{Fields: []string{"id"}, IncludeGeometry: true, Limit: 1})
	require.NoError(t, err)
	defer rows.Close()

	assert.Equal(t, "SELECT id, ST_AsText(geom) AS geom FROM public.parcels LIMIT 1", h.Calls[0].Stmt)
	assert.True(t, rows.Next())
}

func TestTable_QueryRejectsEmptyProjection(t *testing.T) {
	d, err := schema.NewDescriptor("public", "shapes", []schema.Column{
		{Name: "geom", RawType: "USER-DEFINED", Type: schema.TypeGeometry},
	})
	require.NoError(t, err)
	h := dbtest.New()
	tbl := NewTable(NewDatabase(h, ""), d)

	_, err = tbl.Query(context.Background(), QuerySpec{})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Zero(t, h.Count(dbtest.OpQuery))

	_, err = tbl.Query(context.Background(), QuerySpec{IncludeGeometry: true})
	require.Error(t, err, "no response is scripted, so reaching the handle fails")
	assert.False(t, errs.IsInvalidInput(err))
	assert.Equal(t, 1, h.Count(dbtest.OpQuery))
	assert.Equal(t, "SELECT ST_AsText(geom) AS geom FROM public.shapes", h.Calls[0].Stmt)
}
