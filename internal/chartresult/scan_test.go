package chartresult

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-charts/internal/dbexec"
	"tidb-charts/internal/sqltype"
)

func queryRows(t *testing.T, rows *sqlmock.Rows) dbexec.Rows {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	result, err := dbexec.NewPoolExecutor(db).QueryContext(context.Background(), "SELECT")
	require.NoError(t, err)
	t.Cleanup(func() { _ = result.Close() })
	return result
}

func TestScanRows(t *testing.T) {
	rows := queryRows(t, sqlmock.NewRows([]string{"x_value", "y_value_0", "y_value_1"}).
		AddRow([]byte("2024-01-01"), []byte("15.0000000000"), int64(2)).
		AddRow([]byte("2024-01-02"), []byte("7"), nil))

	got, err := ScanRows(rows, []sqltype.Kind{sqltype.KindText, sqltype.KindNumeric, sqltype.KindNumeric})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Row{Category: "2024-01-01", Values: []interface{}{15.0, int64(2)}}, got[0])
	assert.Equal(t, Row{Category: "2024-01-02", Values: []interface{}{7.0, nil}}, got[1])
}

func TestScanRows_Empty(t *testing.T) {
	rows := queryRows(t, sqlmock.NewRows([]string{"x_value", "y_value_0"}))

	got, err := ScanRows(rows, []sqltype.Kind{sqltype.KindText, sqltype.KindNumeric})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestScanRows_ColumnMismatch(t *testing.T) {
	rows := queryRows(t, sqlmock.NewRows([]string{"x_value", "y_value_0"}))

	_, err := ScanRows(rows, []sqltype.Kind{sqltype.KindText})
	assert.Error(t, err)
}

func TestConvertValue(t *testing.T) {
	midnight := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 2, 20, 15, 0, 0, time.UTC)

	tests := []struct {
		name string
		val  interface{}
		kind sqltype.Kind
		want interface{}
	}{
		{"nil", nil, sqltype.KindNumeric, nil},
		{"numeric bytes", []byte("12.50"), sqltype.KindNumeric, 12.5},
		{"text bytes keep leading zeros", []byte("00123"), sqltype.KindText, "00123"},
		{"unparseable numeric stays text", []byte("n/a"), sqltype.KindNumeric, "n/a"},
		{"midnight is a date", midnight, sqltype.KindTemporal, "2024-01-02"},
		{"time of day is RFC3339", evening, sqltype.KindTemporal, "2024-01-02T20:15:00Z"},
		{"bool", true, sqltype.KindBoolean, int64(1)},
		{"int passthrough", int64(9), sqltype.KindNumeric, int64(9)},
		{"float passthrough", 1.5, sqltype.KindNumeric, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertValue(tt.val, tt.kind))
		})
	}
}
