package postgis

import (
	"reflect"
	"strings"
	"time"

	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/rowsource"
	"github.com/koustreak/geori/internal/schema"
)

// Coerce renders v as a SQL literal for a column of type t.
//
// Numeric values are emitted bare and are not validated; a non-numeric
// string fails at the database. Text values are single-quoted with embedded
// quotes doubled. Falsy text values, including 0 and false, become '' rather
// than NULL. Dates are quoted verbatim. Geometry values are returned as plain
// text for PrepareGeometry to wrap.
func Coerce(v any, t schema.ColumnType) (string, error) {
	switch t {
	case schema.TypeNumeric:
		if falsy(v) {
			return "NULL", nil
		}
		return rowsource.FormatValue(v), nil
	case schema.TypeText:
		if falsy(v) {
			return "''", nil
		}
		return quote(rowsource.FormatValue(v)), nil
	case schema.TypeDate:
		if falsy(v) {
			return "NULL", nil
		}
		return "'" + rowsource.FormatValue(v) + "'", nil
	case schema.TypeGeometry:
		return rowsource.FormatValue(v), nil
	default:
		return "", errs.Newf(errs.ErrKindUnsupportedColumnType, "unsupported column type %s", t)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// falsy reports whether v counts as absent: nil, "", zero numbers, false,
// empty slices and maps, and the zero time. Pointers and driver.Valuer
// values are judged by what they resolve to.
func falsy(v any) bool {
	v = rowsource.Indirect(v)
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	case bool:
		return !x
	case time.Time:
		return x.IsZero()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
