package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koustreak/geori/internal/config"
	"github.com/koustreak/geori/internal/database/dbtest"
	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/postgis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h *dbtest.Handle) http.Handler {
	t.Helper()
	db := postgis.NewDatabase(h, "")
	return New(db, config.ServerConfig{MaxRows: 50}, logger.Nop()).Routes()
}

func parcelsHandle() *dbtest.Handle {
	return dbtest.New().
		On("information_schema.columns", []string{"column_name", "data_type", "udt_name"},
			[]any{"id", "integer", "int4"},
			[]any{"name", "text", "text"},
			[]any{"geom", "USER-DEFINED", "geometry"},
		).
		On("Find_SRID", []string{"srid"}, []any{int32(4326)}).
		On("geometry_columns", []string{"type"}, []any{"MULTIPOLYGON"}).
		On("BASE TABLE", []string{"table_name"}, []any{"parcels"}, []any{"roads"}).
		On("FROM public.parcels", []string{"id", "name", "geom"},
			[]any{int64(1), []byte("Main St"), "MULTIPOLYGON(((0 0,1 0,1 1,0 0)))"},
		)
}

func get(t *testing.T, handler http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := get(t, newTestServer(t, dbtest.New()), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestHealth_Unavailable(t *testing.T) {
	h := dbtest.New()
	require.NoError(t, h.Close(t.Context()))

	rec, body := get(t, newTestServer(t, h), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection_failed", body["kind"])
}

func TestListTables(t *testing.T) {
	h := parcelsHandle()
	rec, body := get(t, newTestServer(t, h), "/tables?schema=gis")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"parcels", "roads"}, body["tables"])
	assert.Contains(t, h.Calls[0].Stmt, "table_schema = 'gis'")
}

func TestDescribeTable(t *testing.T) {
	rec, body := get(t, newTestServer(t, parcelsHandle()), "/tables/parcels")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "public", body["schema"])
	assert.Equal(t, "parcels", body["name"])
	assert.Equal(t, "geom", body["geometry_column"])
	assert.EqualValues(t, 4326, body["srid"])
	assert.Equal(t, "MULTIPOLYGON", body["geometry_type"])

	cols := body["columns"].([]any)
	require.Len(t, cols, 3)
	assert.Equal(t, map[string]any{"name": "geom", "raw_type": "USER-DEFINED", "type": "geometry"}, cols[2])
}

func TestDescribeTable_NotFound(t *testing.T) {
	h := dbtest.New().On("information_schema.columns", []string{"column_name", "data_type", "udt_name"})
	rec, body := get(t, newTestServer(t, h), "/tables/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["kind"])
}

func TestTableRows(t *testing.T) {
	h := parcelsHandle()
	rec, body := get(t, newTestServer(t, h), "/tables/parcels/rows?srid=3857&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.EqualValues(t, 1, body["count"])
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{
		"id":   float64(1),
		"name": "Main St",
		"geom": "MULTIPOLYGON(((0 0,1 0,1 1,0 0)))",
	}, rows[0])

	last := h.Calls[len(h.Calls)-1]
	assert.Equal(t, "SELECT id, name, ST_AsText(ST_Transform(geom, 3857)) AS geom FROM public.parcels LIMIT 10", last.Stmt)
}

func TestTableRows_QueryParameters(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"defaults cap at max rows", "/tables/parcels/rows", "SELECT id, name, ST_AsText(geom) AS geom FROM public.parcels LIMIT 50"},
		{"limit above max is capped", "/tables/parcels/rows?limit=500", "SELECT id, name, ST_AsText(geom) AS geom FROM public.parcels LIMIT 50"},
		{"fields without geometry", "/tables/parcels/rows?fields=name,id&geom=false", "SELECT name, id FROM public.parcels LIMIT 50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := parcelsHandle()
			rec, _ := get(t, newTestServer(t, h), tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, h.Calls[len(h.Calls)-1].Stmt)
		})
	}
}

func TestTableRows_BadRequests(t *testing.T) {
	tests := []struct {
		name, path, kind string
	}{
		{"bad limit", "/tables/parcels/rows?limit=-1", "invalid_input"},
		{"bad srid", "/tables/parcels/rows?srid=web", "invalid_input"},
		{"bad geom flag", "/tables/parcels/rows?geom=maybe", "invalid_input"},
		{"unknown field", "/tables/parcels/rows?fields=owner", "unknown_column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := parcelsHandle()
			rec, body := get(t, newTestServer(t, h), tt.path)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.kind, body["kind"])
			assert.Zero(t, h.Count(dbtest.OpQuery))
		})
	}
}
