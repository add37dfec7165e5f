package chartresult

import (
	"fmt"
	"strconv"
	"time"

	"tidb-charts/internal/dbexec"
	"tidb-charts/internal/sqltype"
)

const dateLayout = "2006-01-02"

// ScanRows reads every row of a chart query. kinds gives the value kind of
// each projection, x_value first; it must match the result column count.
func ScanRows(rows dbexec.Rows, kinds []sqltype.Kind) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(columns) != len(kinds) || len(columns) == 0 {
		return nil, fmt.Errorf("result has %d columns, expected %d", len(columns), len(kinds))
	}

	results := []Row{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := Row{
			Category: ConvertValue(values[0], kinds[0]),
			Values:   make([]interface{}, len(columns)-1),
		}
		for i := 1; i < len(columns); i++ {
			row.Values[i-1] = ConvertValue(values[i], kinds[i])
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// ConvertValue turns a driver value into a JSON-friendly one. Numeric text
// (DECIMAL results arrive as bytes) becomes float64 for numeric kinds.
func ConvertValue(val interface{}, kind sqltype.Kind) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return convertText(string(v), kind)
	case string:
		return convertText(v, kind)
	case time.Time:
		return formatTime(v)
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func convertText(s string, kind sqltype.Kind) interface{} {
	if kind.IsNumeric() {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func formatTime(t time.Time) interface{} {
	utc := t.UTC()
	if utc.Hour() == 0 && utc.Minute() == 0 && utc.Second() == 0 && utc.Nanosecond() == 0 {
		return utc.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}
