package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-charts/internal/introspection"
	"tidb-charts/internal/sqltype"
)

func TestPlanChartQuery_Bucketed(t *testing.T) {
	req := ChartRequest{
		Table:        "readings",
		CategoryAxis: "day",
		ValueAxes:    []string{"value"},
		Aggregation:  AggregationSum,
	}

	planned, err := PlanChartQuery(req, readingsTable(), readingsProfile(), DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT DATE_FORMAT(`day`, '%Y-%m-%d') AS x_value, SUM(`value`) AS y_value_0 "+
			"FROM `readings` WHERE (`day` IS NOT NULL AND `value` IS NOT NULL) "+
			"GROUP BY DATE_FORMAT(`day`, '%Y-%m-%d') ORDER BY x_value ASC",
		planned.Query.SQL)
	assert.Empty(t, planned.Query.Args)
	assert.Equal(t, 1, planned.ValueCount)
	assert.IsType(t, BucketedAggregatePlan{}, planned.Plan)
	assert.Equal(t, []sqltype.Kind{sqltype.KindText, sqltype.KindNumeric}, planned.Kinds)
}

func TestPlanChartQuery_BucketedMultiValueWithRange(t *testing.T) {
	req := ChartRequest{
		Table:         "readings",
		CategoryAxis:  "day",
		ValueAxes:     []string{"value", "sensor"},
		CategoryRange: &Range{Min: strPtr("2024-01-01")},
		Aggregation:   AggregationCount,
	}

	planned, err := PlanChartQuery(req, readingsTable(), readingsProfile(), DefaultLimits())
	require.NoError(t, err)

	assert.Contains(t, planned.Query.SQL, "COUNT(`value`) AS y_value_0, COUNT(`sensor`) AS y_value_1")
	assert.Contains(t, planned.Query.SQL, "AND DATE(`day`) >= ?) GROUP BY")
	assert.Equal(t, []interface{}{"2024-01-01"}, planned.Query.Args)
	assert.Equal(t, 2, planned.ValueCount)
}

func TestPlanChartQuery_Raw(t *testing.T) {
	req := ChartRequest{
		Table:        "readings",
		CategoryAxis: "sensor",
		ValueAxes:    []string{"value", "day"},
		Limit:        intPtr(20),
		ValueRanges:  map[string]Range{"value": {Min: strPtr("1")}},
		Aggregation:  AggregationAvg,
	}

	planned, err := PlanChartQuery(req, readingsTable(), readingsProfile(), DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT `sensor` AS x_value, `value` AS y_value_0, DATE_FORMAT(`day`, '%Y-%m-%d') AS y_value_1 "+
			"FROM `readings` WHERE (`sensor` IS NOT NULL AND `value` IS NOT NULL AND `day` IS NOT NULL AND `value` >= ?) "+
			"ORDER BY `id` ASC LIMIT 20",
		planned.Query.SQL)
	assert.Equal(t, []interface{}{1.0}, planned.Query.Args)
	assert.NotContains(t, planned.Query.SQL, "AVG(")
	assert.Equal(t, []sqltype.Kind{sqltype.KindText, sqltype.KindNumeric, sqltype.KindText}, planned.Kinds)
}

func TestPlanChartQuery_RawViewHasNoOrderBy(t *testing.T) {
	view := introspection.TableSchema{
		Name:   "daily_sales",
		IsView: true,
		Columns: []introspection.Column{
			{Name: "region", Kind: sqltype.KindText},
			{Name: "total", Kind: sqltype.KindNumeric, IsPrimaryKey: true},
		},
	}
	req := ChartRequest{Table: "daily_sales", CategoryAxis: "region", ValueAxes: []string{"total"}}

	planned, err := PlanChartQuery(req, view, TableProfile{}, DefaultLimits())
	require.NoError(t, err)
	assert.NotContains(t, planned.Query.SQL, "ORDER BY")
	assert.Contains(t, planned.Query.SQL, "LIMIT 1000")
}

func TestPlanChartQuery_DuplicateValueAxes(t *testing.T) {
	req := ChartRequest{Table: "readings", CategoryAxis: "day", ValueAxes: []string{"value", "value"}}

	planned, err := PlanChartQuery(req, readingsTable(), readingsProfile(), DefaultLimits())
	require.NoError(t, err)
	assert.Contains(t, planned.Query.SQL, "SUM(`value`) AS y_value_0, SUM(`value`) AS y_value_1")
	assert.Equal(t, 2, planned.ValueCount)
}

func TestPlanChartQuery_Errors(t *testing.T) {
	table := readingsTable()

	_, err := PlanChartQuery(ChartRequest{Table: "readings", ValueAxes: []string{"value"}}, table, readingsProfile(), DefaultLimits())
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "xAxis", invalid.Param)

	_, err = PlanChartQuery(ChartRequest{Table: "readings", CategoryAxis: "day", ValueAxes: []string{"value", "sensor_count"}}, table, readingsProfile(), DefaultLimits())
	var unknown *UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "Invalid yAxis column name: sensor_count")
}

func TestPlanChartQuery_Deterministic(t *testing.T) {
	req := ChartRequest{
		Table:        "readings",
		CategoryAxis: "sensor",
		ValueAxes:    []string{"value", "id"},
		ValueRanges: map[string]Range{
			"value": {Min: strPtr("1")},
			"id":    {Max: strPtr("9")},
		},
	}

	first, err := PlanChartQuery(req, readingsTable(), readingsProfile(), DefaultLimits())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := PlanChartQuery(req, readingsTable(), readingsProfile(), DefaultLimits())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestValueAlias(t *testing.T) {
	assert.Equal(t, "y_value_0", ValueAlias(0))
	assert.Equal(t, "y_value_12", ValueAlias(12))
}
