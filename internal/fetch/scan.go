package fetch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

// cellValue converts a driver value into a row value. Numerics become
// numbers, text and bytes become strings and NULL stays null.
func cellValue(v any) rollup.Value {
	switch val := v.(type) {
	case nil:
		return rollup.Null
	case []byte:
		return rollup.Text(string(val))
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return rollup.Text(val.Format("2006-01-02"))
		}
		return rollup.Text(val.UTC().Format(time.RFC3339))
	case pgtype.Numeric:
		if !val.Valid {
			return rollup.Null
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return rollup.Null
		}
		return rollup.Num(f.Float64)
	case [16]byte:
		return rollup.Text(uuid.UUID(val).String())
	case pgtype.UUID:
		if !val.Valid {
			return rollup.Null
		}
		return rollup.Text(uuid.UUID(val.Bytes).String())
	case pgtype.Text:
		if !val.Valid {
			return rollup.Null
		}
		return rollup.Text(val.String)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, string, bool:
		return rollup.ValueOf(val)
	default:
		return rollup.Text(fmt.Sprint(val))
	}
}

func buildRow(columns []string, values []any) rollup.Row {
	var row rollup.Row
	for i, col := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		row.Set(col, cellValue(v))
	}
	return row
}
