// Package rowsource defines the lazy row stream consumed by the PostGIS
// writer and produced by the read path, together with CSV, in-memory and
// SQL-result implementations.
//
// Iteration follows the database/sql pattern:
//
//	for src.Next() {
//		vals := src.Values()
//		...
//	}
//	if err := src.Err(); err != nil { ... }
package rowsource

// Source is a single-pass sequence of rows with a fixed field list.
//
// Values returns the current row aligned with Header. Entries are raw
// scalars: string, a Go numeric kind, bool, time.Time, []byte, or nil.
// The returned slice is only valid until the next call to Next.
type Source interface {
	Header() []string
	Next() bool
	Values() []any
	Err() error
	Close() error
}

// Slice is an in-memory Source.
type Slice struct {
	header []string
	rows   [][]any
	pos    int
}

var _ Source = (*Slice)(nil)

// FromSlice returns a Source over rows.
func FromSlice(header []string, rows ...[]any) *Slice {
	return &Slice{header: header, rows: rows, pos: -1}
}

func (s *Slice) Header() []string { return s.header }

func (s *Slice) Next() bool {
	if s.pos+1 >= len(s.rows) {
		s.pos = len(s.rows)
		return false
	}
	s.pos++
	return true
}

func (s *Slice) Values() []any {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return nil
	}
	return s.rows[s.pos]
}

func (s *Slice) Err() error   { return nil }
func (s *Slice) Close() error { return nil }

// Collect drains src into memory and closes it.
func Collect(src Source) ([][]any, error) {
	defer src.Close()

	var rows [][]any
	for src.Next() {
		vals := src.Values()
		row := make([]any, len(vals))
		copy(row, vals)
		rows = append(rows, row)
	}
	return rows, src.Err()
}
