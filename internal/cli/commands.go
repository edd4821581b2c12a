package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/filestore"
	"github.com/koustreak/geori/internal/postgis"
	"github.com/koustreak/geori/internal/rowsource"
	"github.com/koustreak/geori/internal/server"
	"github.com/spf13/cobra"
)

func (a *app) describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show a table's columns and geometry metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeFn, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			tbl, err := db.Table(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			d := tbl.Descriptor()
			_, _ = fmt.Fprintf(out, "Table: %s\n", tbl.Name())

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"column", "raw type", "type"})
			for _, c := range d.Columns {
				t.AppendRow(table.Row{c.Name, c.RawType, c.Type.String()})
			}
			t.Render()

			geom, ok := d.GeometryColumn()
			if !ok {
				_, _ = fmt.Fprintln(out, "Geometry: none")
				return nil
			}
			srid, err := tbl.SRID(ctx)
			if err != nil {
				return err
			}
			gt, err := tbl.GeometryType(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Geometry: %s %s SRID=%d\n", geom, gt, srid)
			return nil
		},
	}
}

// statementPrintLimit caps the failed statement echoed by load.
const statementPrintLimit = 2048

func (a *app) loadCmd() *cobra.Command {
	var (
		file       string
		object     string
		fromSRID   int
		batchSize  int
		noTruncate bool
	)

	cmd := &cobra.Command{
		Use:   "load <table>",
		Short: "Load CSV rows into a table",
		Long: `Load reads CSV rows from a file, an object store or stdin and inserts them
into an existing table. The table is truncated first unless --no-truncate is set.
The CSV header names the columns to fill; a geometry column holds WKT.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" && object != "" {
				return errs.New(errs.ErrKindInvalidInput, "--file and --object are mutually exclusive")
			}
			ctx := cmd.Context()

			src, err := a.openSource(cmd, file, object)
			if err != nil {
				return err
			}
			defer src.Close()

			db, closeFn, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			opts := postgis.WriteOptions{SourceSRID: a.cfg.Write.SourceSRID, BatchSize: a.cfg.Write.BatchSize}
			if cmd.Flags().Changed("from-srid") {
				opts.SourceSRID = fromSRID
			}
			if cmd.Flags().Changed("batch-size") {
				opts.BatchSize = batchSize
			}

			var stats postgis.WriteStats
			if noTruncate {
				var tbl *postgis.Table
				if tbl, err = db.Table(ctx, args[0]); err != nil {
					return err
				}
				stats, err = tbl.Write(ctx, src, opts)
			} else {
				stats, err = postgis.Load(ctx, db, src, args[0], opts)
			}
			if err != nil {
				if errs.IsWriteFailed(err) {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d rows in %d batches were committed before the failure\n",
						stats.Rows, stats.Batches)
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "failed statement: %s\n",
						postgis.Abbreviate(errs.StatementOf(err), statementPrintLimit))
				}
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows into %s in %d batches\n", stats.Rows, args[0], stats.Batches)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file to load (default: stdin)")
	cmd.Flags().StringVar(&object, "object", "", "CSV object to load, as bucket/key")
	cmd.Flags().IntVar(&fromSRID, "from-srid", 0, "SRID of the input geometries (default: the column SRID)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per INSERT statement")
	cmd.Flags().BoolVar(&noTruncate, "no-truncate", false, "append instead of replacing the table contents")
	return cmd
}

func (a *app) openSource(cmd *cobra.Command, file, object string) (rowsource.Source, error) {
	switch {
	case object != "":
		ref, err := filestore.ParseRef(object, a.cfg.Store.DefaultBucket)
		if err != nil {
			return nil, err
		}
		if !a.cfg.Store.Enabled() {
			return nil, errs.New(errs.ErrKindInvalidInput, "--object needs store.endpoint to be configured")
		}
		store, err := a.openStore(cmd.Context(), &a.cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(cmd.Context()); err != nil {
			return nil, err
		}
		return filestore.OpenCSV(cmd.Context(), store, ref)
	case file != "" && file != "-":
		f, err := os.Open(file)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to open "+file, err)
		}
		return rowsource.NewCSV(f)
	default:
		return rowsource.NewCSV(cmd.InOrStdin())
	}
}

func (a *app) dumpCmd() *cobra.Command {
	var (
		fields string
		noGeom bool
		toSRID int
		where  string
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "dump <table>",
		Short: "Write a table's rows to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeFn, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			spec := postgis.QuerySpec{
				IncludeGeometry: !noGeom,
				TargetSRID:      toSRID,
				Where:           where,
				Limit:           limit,
			}
			if fields != "" {
				for _, f := range strings.Split(fields, ",") {
					if f = strings.TrimSpace(f); f != "" {
						spec.Fields = append(spec.Fields, f)
					}
				}
			}

			src, err := postgis.Extract(ctx, db, args[0], spec)
			if err != nil {
				return err
			}

			switch format {
			case "csv":
				_, err = rowsource.WriteCSV(cmd.OutOrStdout(), src)
				return err
			case "table":
				return renderTable(cmd, src)
			default:
				_ = src.Close()
				return errs.Newf(errs.ErrKindInvalidInput, "unknown format %q (want csv or table)", format)
			}
		},
	}

	cmd.Flags().StringVar(&fields, "fields", "", "comma-separated columns (default: all non-geometry columns)")
	cmd.Flags().BoolVar(&noGeom, "no-geom", false, "omit the geometry column")
	cmd.Flags().IntVar(&toSRID, "to-srid", 0, "reproject geometries to this SRID")
	cmd.Flags().StringVar(&where, "where", "", "SQL predicate appended after WHERE (trusted input)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows")
	cmd.Flags().StringVarP(&format, "format", "o", "csv", "output format: csv or table")
	return cmd
}

func renderTable(cmd *cobra.Command, src rowsource.Source) error {
	rows, err := rowsource.Collect(src)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(src.Header()))
	for i, c := range src.Header() {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = rowsource.FormatValue(v)
		}
		t.AppendRow(row)
	}
	t.Render()
	return nil
}

func (a *app) truncateCmd() *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "truncate <table>",
		Short: "Remove all rows from a table and reset its identity sequences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeFn, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			tbl, err := db.Table(ctx, args[0])
			if err != nil {
				return err
			}
			if err := tbl.Truncate(ctx, cascade); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "truncated %s\n", tbl.Name())
			return nil
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "also truncate tables with foreign keys to this one")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tables read-only over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, closeFn, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			cfg := a.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}
			return server.New(db, cfg, a.log).Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
