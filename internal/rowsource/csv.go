package rowsource

import (
	"database/sql/driver"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"time"

	"github.com/koustreak/geori/internal/errs"
)

// CSV reads rows from comma-separated text. The first record is the header;
// every cell is delivered as a string.
type CSV struct {
	r      *csv.Reader
	closer io.Closer
	header []string
	row    []any
	line   int
	err    error
}

var _ Source = (*CSV)(nil)

// NewCSV reads the header from r. If r is an io.Closer, Close closes it.
func NewCSV(r io.Reader) (*CSV, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if c, ok := r.(io.Closer); ok {
			_ = c.Close()
		}
		if errors.Is(err, io.EOF) {
			return nil, errs.New(errs.ErrKindInvalidInput, "csv input is empty")
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read csv header", err)
	}

	s := &CSV{r: cr, header: append([]string(nil), header...), line: 1}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

func (s *CSV) Header() []string { return s.header }

func (s *CSV) Next() bool {
	if s.err != nil {
		return false
	}
	rec, err := s.r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = errs.Wrap(errs.ErrKindInvalidInput, "failed to read csv record", err)
		}
		return false
	}
	s.line++
	if len(rec) != len(s.header) {
		s.err = errs.Newf(errs.ErrKindInvalidInput,
			"csv record %d has %d fields, header has %d", s.line, len(rec), len(s.header))
		return false
	}
	if s.row == nil {
		s.row = make([]any, len(rec))
	}
	for i, v := range rec {
		s.row[i] = v
	}
	return true
}

func (s *CSV) Values() []any { return s.row }
func (s *CSV) Err() error    { return s.err }

func (s *CSV) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// WriteCSV writes src to w as CSV with a header record and returns the
// number of data rows written. src is closed.
func WriteCSV(w io.Writer, src Source) (int, error) {
	defer src.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(src.Header()); err != nil {
		return 0, errs.Wrap(errs.ErrKindUnknown, "failed to write csv header", err)
	}

	n := 0
	rec := make([]string, len(src.Header()))
	for src.Next() {
		for i, v := range src.Values() {
			if i < len(rec) {
				rec[i] = FormatValue(v)
			}
		}
		if err := cw.Write(rec); err != nil {
			return n, errs.Wrap(errs.ErrKindUnknown, "failed to write csv record", err)
		}
		n++
	}
	if err := src.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, errs.Wrap(errs.ErrKindUnknown, "failed to flush csv output", err)
	}
	return n, nil
}

// Indirect resolves v to the scalar it stands for: driver.Valuer values
// are replaced by their Value and pointers are dereferenced. Nil pointers
// and invalid sql.Null* values resolve to nil.
func Indirect(v any) any {
	for {
		if v == nil {
			return nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		if x, ok := v.(driver.Valuer); ok {
			dv, err := x.Value()
			if err != nil {
				return v
			}
			return Indirect(dv)
		}
		if rv.Kind() != reflect.Pointer {
			return v
		}
		v = rv.Elem().Interface()
	}
}

// FormatValue renders a raw scalar as plain text. nil, nil pointers and
// invalid sql.Null* values become "".
func FormatValue(v any) string {
	switch x := Indirect(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		h, m, sec := x.Clock()
		if h == 0 && m == 0 && sec == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.DateTime)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
