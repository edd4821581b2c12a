package database

import "github.com/koustreak/geori/internal/errs"

// ScanRows reads all rows from the result set and returns them as a slice
// of maps, where each key is the column name and each value is the Go-native
// representation of the DB value.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows.
func ScanRows(rows Rows) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([]map[string]any, 0)

	for rows.Next() {
		dest, err := ScanValues(rows, len(columns))
		if err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = dest[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return result, nil
}

// ScanValues scans the current row into n untyped values.
func ScanValues(rows Rows, n int) ([]any, error) {
	// Allocate scan targets as *any so the driver can write any type.
	dest := make([]any, n)
	destPtrs := make([]any, n)
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	if err := rows.Scan(destPtrs...); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}
	return dest, nil
}
