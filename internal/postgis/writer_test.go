package postgis

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/koustreak/geori/internal/database/dbtest"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/rowsource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func polygonRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i + 1, fmt.Sprintf("parcel %d", i+1), "POLYGON ((0 0, 1 0, 1 1, 0 0))"}
	}
	return rows
}

func tupleCount(stmt string) int {
	_, values, ok := strings.Cut(stmt, " VALUES ")
	if !ok {
		return 0
	}
	return strings.Count(values, "), (") + 1
}

// errorLog returns a context whose logger writes error-level JSON to buf, and a
// function decoding the entries written so far.
func errorLog(t *testing.T) (context.Context, func() []map[string]any) {
	t.Helper()
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "error", Format: logger.FormatJSON, Output: buf})
	return log.WithContext(context.Background()), func() []map[string]any {
		var entries []map[string]any
		sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			var e map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
			entries = append(entries, e)
		}
		return entries
	}
}

func TestWrite_PromotesSingularGeometryToMulti(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "name", "geom"},
		[]any{1, "O'Brien", "POLYGON ((0 0, 1 0, 1 1, 0 0))"},
	)
	stats, err := tbl.Write(context.Background(), src, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Rows: 1, Batches: 1}, stats)

	execs := h.Execs()
	require.Len(t, execs, 1)
	assert.Equal(t, "INSERT INTO public.parcels (id, name, geom) VALUES "+
		"(1, 'O''Brien', ST_Multi(ST_GeomFromText('POLYGON ((0 0, 1 0, 1 1, 0 0))', 4326)))", execs[0])
	assert.NotContains(t, execs[0], "ST_Transform")
	assert.Equal(t, []dbtest.Op{dbtest.OpFetch, dbtest.OpFetch, dbtest.OpExec, dbtest.OpCommit}, h.Ops())
}

func TestWrite_BatchesAndCommits(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "name", "geom"}, polygonRows(2500)...)
	stats, err := tbl.Write(context.Background(), src, WriteOptions{BatchSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Rows: 2500, Batches: 3}, stats)

	execs := h.Execs()
	require.Len(t, execs, 3)
	assert.Equal(t, 1000, tupleCount(execs[0]))
	assert.Equal(t, 1000, tupleCount(execs[1]))
	assert.Equal(t, 500, tupleCount(execs[2]))

	// every INSERT is followed directly by a commit
	var ops []dbtest.Op
	for _, op := range h.Ops() {
		if op != dbtest.OpFetch {
			ops = append(ops, op)
		}
	}
	assert.Equal(t, []dbtest.Op{
		dbtest.OpExec, dbtest.OpCommit,
		dbtest.OpExec, dbtest.OpCommit,
		dbtest.OpExec, dbtest.OpCommit,
	}, ops)
}

func TestWrite_StatementCount(t *testing.T) {
	tests := []struct {
		rows, batch int
		want        []int
	}{
		{0, 10, nil},
		{1, 10, []int{1}},
		{10, 10, []int{10}},
		{11, 10, []int{10, 1}},
		{30, 10, []int{10, 10, 10}},
		{7, 3, []int{3, 3, 1}},
		{5, 1, []int{1, 1, 1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d rows by %d", tt.rows, tt.batch), func(t *testing.T) {
			h := parcelsHandle()
			tbl := openParcels(t, h)

			src := rowsource.FromSlice([]string{"id", "name", "geom"}, polygonRows(tt.rows)...)
			stats, err := tbl.Write(context.Background(), src, WriteOptions{BatchSize: tt.batch})
			require.NoError(t, err)

			var got []int
			for _, s := range h.Execs() {
				got = append(got, tupleCount(s))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rows, stats.Rows)
			assert.Equal(t, len(tt.want), stats.Batches)
			assert.Equal(t, len(tt.want), h.Count(dbtest.OpCommit))
		})
	}
}

func TestWrite_DefaultBatchSize(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "name", "geom"}, polygonRows(DefaultBatchSize+1)...)
	_, err := tbl.Write(context.Background(), src, WriteOptions{BatchSize: 0})
	require.NoError(t, err)
	require.Len(t, h.Execs(), 2)
	assert.Equal(t, DefaultBatchSize, tupleCount(h.Execs()[0]))
}

func TestWrite_EmptyStream(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	stats, err := tbl.Write(context.Background(), rowsource.FromSlice([]string{"id", "name"}), WriteOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats)
	assert.Empty(t, h.Execs())
	assert.Zero(t, h.Count(dbtest.OpCommit))
}

func TestWrite_UnknownColumn(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "owner"}, []any{1, "x"})
	_, err := tbl.Write(context.Background(), src, WriteOptions{})
	require.Error(t, err)
	assert.True(t, errs.IsUnknownColumn(err))
	assert.Empty(t, h.Calls)
}

func TestWrite_OnlyHeaderFieldsAreInserted(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"name"}, []any{"a"}, []any{nil})
	_, err := tbl.Write(context.Background(), src, WriteOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"INSERT INTO public.parcels (name) VALUES ('a'), ('')"}, h.Execs())
	assert.Zero(t, h.Count(dbtest.OpFetch), "no geometry metadata needed")
}

func TestWrite_ExplicitSourceSRIDIsReprojected(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "geom"}, []any{1, "MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))"})
	_, err := tbl.Write(context.Background(), src, WriteOptions{SourceSRID: 2272})
	require.NoError(t, err)

	assert.Equal(t, []string{"INSERT INTO public.parcels (id, geom) VALUES " +
		"(1, ST_Transform(ST_GeomFromText('MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))', 2272), 4326))"}, h.Execs())
}

func TestWrite_MultiDecisionFromFirstRowOnly(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "geom"},
		[]any{1, "MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))"},
		[]any{2, "POLYGON ((0 0, 1 0, 1 1, 0 0))"},
	)
	_, err := tbl.Write(context.Background(), src, WriteOptions{})
	require.NoError(t, err)

	stmt := h.Execs()[0]
	assert.NotContains(t, stmt, "ST_Multi", "the first row decides for the whole call")
	assert.Equal(t, 2, h.Count(dbtest.OpFetch), "SRID and geometry type are fetched once each")
}

func TestWrite_EmptyGeometryIsNull(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "geom"}, []any{1, ""}, []any{2, nil})
	_, err := tbl.Write(context.Background(), src, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"INSERT INTO public.parcels (id, geom) VALUES (1, NULL), (2, NULL)"}, h.Execs())
}

func TestWrite_FailedBatch(t *testing.T) {
	h := parcelsHandle().FailExec(2, assert.AnError)
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "name", "geom"}, polygonRows(25)...)
	stats, err := tbl.Write(context.Background(), src, WriteOptions{BatchSize: 10})
	require.Error(t, err)

	assert.True(t, errs.IsWriteFailed(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "batch 2")
	assert.Equal(t, h.Execs()[1], errs.StatementOf(err))
	assert.Equal(t, WriteStats{Rows: 10, Batches: 1}, stats)

	var ops []dbtest.Op
	for _, op := range h.Ops() {
		if op != dbtest.OpFetch {
			ops = append(ops, op)
		}
	}
	assert.Equal(t, []dbtest.Op{dbtest.OpExec, dbtest.OpCommit, dbtest.OpExec, dbtest.OpRollback}, ops)
	assert.False(t, h.InTx())
}

func TestWrite_FailureLogging(t *testing.T) {
	tests := []struct {
		name        string
		rows        int
		rollbackErr error
		messages    []string
		truncated   bool
	}{
		{name: "short statement", rows: 3, messages: []string{"batch failed"}},
		{name: "long statement", rows: 40, messages: []string{"batch failed"}, truncated: true},
		{
			name:        "rollback fails",
			rows:        3,
			rollbackErr: errors.New("connection reset"),
			messages:    []string{"rollback failed", "batch failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := parcelsHandle().FailExec(1, assert.AnError)
			if tt.rollbackErr != nil {
				h.FailRollback(tt.rollbackErr)
			}
			tbl := openParcels(t, h)
			ctx, entries := errorLog(t)

			src := rowsource.FromSlice([]string{"id", "name", "geom"}, polygonRows(tt.rows)...)
			_, err := tbl.Write(ctx, src, WriteOptions{BatchSize: 100})
			require.Error(t, err)
			assert.True(t, errs.IsWriteFailed(err), "rollback errors must not mask the insert failure")
			assert.ErrorIs(t, err, assert.AnError)

			logged := entries()
			require.Len(t, logged, len(tt.messages))
			for i, msg := range tt.messages {
				assert.Equal(t, msg, logged[i]["message"])
				assert.Equal(t, "public.parcels", logged[i]["table"])
			}
			if tt.rollbackErr != nil {
				assert.Contains(t, logged[0]["error"], "connection reset")
			}

			failed := logged[len(logged)-1]
			stmt, ok := failed["statement"].(string)
			require.True(t, ok, "batch failure should carry the statement")
			assert.True(t, strings.HasPrefix(stmt, "INSERT INTO public.parcels (id, name, geom) VALUES "))
			if tt.truncated {
				assert.Less(t, len(stmt), len(errs.StatementOf(err)))
				assert.Contains(t, stmt, "more bytes)")
			} else {
				assert.Equal(t, errs.StatementOf(err), stmt)
			}
		})
	}
}

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		stmt  string
		limit int
		want  string
	}{
		{"SELECT 1", 0, "SELECT 1"},
		{"SELECT 1", 8, "SELECT 1"},
		{"SELECT 1", 6, "SELECT... (2 more bytes)"},
		{"", 4, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Abbreviate(tt.stmt, tt.limit), "%q/%d", tt.stmt, tt.limit)
	}
}

func TestWrite_NullableValues(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	name := "Main St"
	src := rowsource.FromSlice([]string{"id", "name"},
		[]any{sql.NullInt64{}, &name},
		[]any{sql.NullInt64{Int64: 5, Valid: true}, sql.NullString{}},
	)
	_, err := tbl.Write(context.Background(), src, WriteOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"INSERT INTO public.parcels (id, name) VALUES (NULL, 'Main St'), (5, '')",
	}, h.Execs())
}

func TestWrite_RaggedRow(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src := rowsource.FromSlice([]string{"id", "name"}, []any{1, "a"}, []any{2})
	_, err := tbl.Write(context.Background(), src, WriteOptions{})
	assert.True(t, errs.IsInvalidInput(err))
	assert.Empty(t, h.Execs())
}

func TestWrite_SourceError(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src, err := rowsource.NewCSV(strings.NewReader("id,name\n1,a\n2\n"))
	require.NoError(t, err)

	_, err = tbl.Write(context.Background(), src, WriteOptions{})
	assert.True(t, errs.IsInvalidInput(err))
	assert.Empty(t, h.Execs(), "pending rows are not flushed after a read error")
}

func TestWrite_CSVSource(t *testing.T) {
	h := parcelsHandle()
	tbl := openParcels(t, h)

	src, err := rowsource.NewCSV(strings.NewReader(
		"id,name,geom\n" +
			"1,Main St,\"MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))\"\n" +
			",,\n"))
	require.NoError(t, err)

	stats, err := tbl.Write(context.Background(), src, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, []string{"INSERT INTO public.parcels (id, name, geom) VALUES " +
		"(1, 'Main St', ST_GeomFromText('MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))', 4326)), " +
		"(NULL, '', NULL)"}, h.Execs())
}
