package postgis

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/rowsource"
	"github.com/koustreak/geori/internal/schema"
)

// DefaultBatchSize is the number of rows per INSERT when none is given.
const DefaultBatchSize = 1000

// statementLogLimit caps the statement text attached to failure logs.
const statementLogLimit = 512

// Abbreviate shortens stmt to at most limit bytes plus a marker noting how
// much was cut. A limit <= 0 returns stmt unchanged.
func Abbreviate(stmt string, limit int) string {
	if limit <= 0 || len(stmt) <= limit {
		return stmt
	}
	return fmt.Sprintf("%s... (%d more bytes)", stmt[:limit], len(stmt)-limit)
}

// WriteOptions configures Write.
type WriteOptions struct {
	// SourceSRID is the SRID of incoming geometries. Zero means they are
	// already in the column's SRID. A different explicit SRID is
	// reprojected into the column's SRID.
	SourceSRID int

	// BatchSize is the number of rows per INSERT statement and commit.
	// Values <= 0 use DefaultBatchSize.
	BatchSize int
}

// WriteStats reports committed work.
type WriteStats struct {
	Rows    int
	Batches int
}

// Write inserts every row of src. Only the fields in src.Header() are
// written, so identity and defaulted columns may be omitted.
//
// Rows are grouped into multi-row INSERTs of opts.BatchSize and each batch
// is committed on its own. When a batch fails its transaction is rolled
// back and a WriteFailed error carrying the statement is returned; earlier
// batches stay committed and are reflected in the returned stats.
//
// Whether geometries are promoted to MULTI types is decided once, from the
// first row that carries a geometry, and applied to every row. Streams that
// mix singular and MULTI geometries are not supported.
func (t *Table) Write(ctx context.Context, src rowsource.Source, opts WriteOptions) (WriteStats, error) {
	var stats WriteStats

	fields := src.Header()
	cols := make([]schema.Column, len(fields))
	quoted := make([]string, len(fields))
	geomIdx := -1
	for i, f := range fields {
		c, ok := t.desc.Lookup(f)
		if !ok {
			return stats, errs.Newf(errs.ErrKindUnknownColumn, "column %q does not exist in %s", f, t.Name())
		}
		cols[i] = c
		quoted[i] = database.QuoteIdent(f)
		if c.Type == schema.TypeGeometry {
			geomIdx = i
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	log := logger.FromContext(ctx).ForTable(t.Name()).With().
		Int("batch_size", batchSize).
		Logger()

	var geo GeometryOptions
	if geomIdx >= 0 {
		var err error
		if geo, err = t.geometryOptions(ctx, opts.SourceSRID); err != nil {
			return stats, err
		}
	}

	b := &batcher{
		t:      t,
		log:    log,
		prefix: "INSERT INTO " + t.Name() + " (" + strings.Join(quoted, ", ") + ") VALUES ",
		rows:   make([]string, 0, min(batchSize, 4096)),
	}

	decided := geomIdx < 0
	for src.Next() {
		vals := src.Values()
		if len(vals) != len(fields) {
			return b.stats, errs.Newf(errs.ErrKindInvalidInput,
				"row %d has %d values, expected %d", b.seen+1, len(vals), len(fields))
		}

		if !decided {
			if kind := geometryKind(rowsource.FormatValue(vals[geomIdx])); kind != "" {
				declared, err := t.GeometryType(ctx)
				if err != nil {
					return b.stats, err
				}
				geo.ForceMulti = needsMulti(declared, kind)
				decided = true
				log.DebugWith("geometry promotion decided from first row", map[string]interface{}{
					"declared": declared,
					"first":    kind,
					"multi":    geo.ForceMulti,
				})
			}
		}

		tuple, err := renderRow(cols, vals, geo)
		if err != nil {
			return b.stats, err
		}
		b.add(tuple)

		if len(b.rows) >= batchSize {
			if err := b.flush(ctx); err != nil {
				return b.stats, err
			}
		}
	}
	if err := src.Err(); err != nil {
		return b.stats, errs.Wrap(errs.ErrKindInvalidInput, "failed to read row source", err)
	}

	if err := b.flush(ctx); err != nil {
		return b.stats, err
	}

	log.With().
		Int("rows", b.stats.Rows).
		Int("batches", b.stats.Batches).
		Logger().
		Info("write complete")
	return b.stats, nil
}

// geometryOptions resolves the source SRID for a write and whether
// geometries need reprojecting into the column's SRID.
func (t *Table) geometryOptions(ctx context.Context, sourceSRID int) (GeometryOptions, error) {
	colSRID, err := t.SRID(ctx)
	if err != nil {
		return GeometryOptions{}, err
	}
	if sourceSRID == 0 {
		return GeometryOptions{SourceSRID: colSRID}, nil
	}
	opts := GeometryOptions{SourceSRID: sourceSRID}
	if colSRID != 0 && colSRID != sourceSRID {
		opts.TargetSRID = colSRID
	}
	return opts, nil
}

// renderRow returns "(v1, v2, ...)" for one row.
func renderRow(cols []schema.Column, vals []any, geo GeometryOptions) (string, error) {
	lits := make([]string, len(cols))
	for i, c := range cols {
		lit, err := Coerce(vals[i], c.Type)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindUnsupportedColumnType,
				fmt.Sprintf("column %q", c.Name), err)
		}
		if c.Type == schema.TypeGeometry {
			if strings.TrimSpace(lit) == "" {
				lit = "NULL"
			} else {
				lit = PrepareGeometry(lit, geo)
			}
		}
		lits[i] = lit
	}
	return "(" + strings.Join(lits, ", ") + ")", nil
}

// batcher accumulates value tuples and flushes them as one INSERT each.
type batcher struct {
	t      *Table
	log    *logger.Logger
	prefix string
	rows   []string
	seen   int
	stats  WriteStats
}

func (b *batcher) add(tuple string) {
	b.rows = append(b.rows, tuple)
	b.seen++
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}
	n := b.stats.Batches + 1
	stmt := b.prefix + strings.Join(b.rows, ", ")
	h := b.t.db.h

	if err := h.Exec(ctx, stmt); err != nil {
		return b.fail(ctx, n, stmt, err)
	}
	if err := h.Commit(ctx); err != nil {
		return b.fail(ctx, n, stmt, err)
	}

	b.stats.Batches = n
	b.stats.Rows += len(b.rows)
	b.log.DebugWith("batch committed", map[string]interface{}{
		"batch": n,
		"rows":  len(b.rows),
	})
	b.rows = b.rows[:0]
	return nil
}

func (b *batcher) fail(ctx context.Context, n int, stmt string, cause error) error {
	if err := b.t.db.h.Rollback(ctx); err != nil {
		b.log.ErrorWith("rollback failed", err, map[string]interface{}{"batch": n})
	}
	b.log.ErrorWith("batch failed", cause, map[string]interface{}{
		"batch":     n,
		"committed": b.stats.Rows,
		"statement": Abbreviate(stmt, statementLogLimit),
	})
	return errs.Wrap(errs.ErrKindWriteFailed,
		fmt.Sprintf("insert batch %d into %s failed", n, b.t.Name()), cause).WithStatement(stmt)
}
