package rowsource

import (
	"github.com/koustreak/geori/internal/database"
	"github.com/koustreak/geori/internal/errs"
)

// Result adapts a database result set to a Source.
type Result struct {
	rows   database.Rows
	header []string
	row    []any
	err    error
	closed bool
}

var _ Source = (*Result)(nil)

// FromRows wraps rows. The Source takes ownership: Close closes rows.
func FromRows(rows database.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}
	return &Result{rows: rows, header: cols}, nil
}

func (r *Result) Header() []string { return r.header }

func (r *Result) Next() bool {
	if r.err != nil || r.closed {
		return false
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			r.err = err
		}
		return false
	}
	vals, err := database.ScanValues(r.rows, len(r.header))
	if err != nil {
		r.err = err
		return false
	}
	r.row = vals
	return true
}

func (r *Result) Values() []any { return r.row }
func (r *Result) Err() error    { return r.err }

func (r *Result) Close() error {
	if !r.closed {
		r.closed = true
		r.rows.Close()
	}
	return nil
}
