package chartapi

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-charts/internal/planner"
)

func TestParseChartRequest(t *testing.T) {
	q := url.Values{}
	q.Set("table", "readings")
	q.Set("xAxis", "day")
	q.Set("yAxis", "ignored")
	q.Set("yAxes", "value, sensor_total")
	q.Set("limit", "50")
	q.Set("xMin", "2024-01-01")
	q.Set("yMax", "100")
	q.Set("aggregation", "AVG")

	req, err := ParseChartRequest(q)
	require.NoError(t, err)

	assert.Equal(t, "readings", req.Table)
	assert.Equal(t, "day", req.CategoryAxis)
	assert.Equal(t, []string{"value", "sensor_total"}, req.ValueAxes)
	require.NotNil(t, req.Limit)
	assert.Equal(t, 50, *req.Limit)
	require.NotNil(t, req.CategoryRange)
	assert.Equal(t, "2024-01-01", *req.CategoryRange.Min)
	assert.Nil(t, req.CategoryRange.Max)
	require.Len(t, req.ValueRanges, 2)
	for _, axis := range []string{"value", "sensor_total"} {
		r := req.ValueRanges[axis]
		assert.Nil(t, r.Min)
		require.NotNil(t, r.Max)
		assert.Equal(t, "100", *r.Max)
	}
	assert.Equal(t, planner.AggregationAvg, req.Aggregation)
}

func TestParseChartRequest_SingleYAxis(t *testing.T) {
	req, err := ParseChartRequest(url.Values{"table": {"t"}, "xAxis": {"x"}, "yAxis": {"y"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, req.ValueAxes)
	assert.Nil(t, req.Limit)
	assert.Nil(t, req.CategoryRange)
	assert.Nil(t, req.ValueRanges)
	assert.Equal(t, planner.AggregationSum, req.Aggregation)
}

func TestParseChartRequest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		param string
	}{
		{
			name:  "non-numeric limit",
			query: url.Values{"limit": {"ten"}},
			param: "limit",
		},
		{
			name:  "unknown aggregation",
			query: url.Values{"aggregation": {"median"}},
			param: "aggregation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChartRequest(tt.query)
			var invalid *planner.InvalidRequestError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.param, invalid.Param)
		})
	}
}

func TestParseChartRequest_MissingAxesLeftToCheck(t *testing.T) {
	req, err := ParseChartRequest(url.Values{"table": {"t"}, "xAxis": {"x"}})
	require.NoError(t, err)
	assert.Empty(t, req.ValueAxes)

	var invalid *planner.InvalidRequestError
	require.ErrorAs(t, req.Check(), &invalid)
	assert.Equal(t, "yAxis", invalid.Param)
}

func TestEncodeChartRequest_ParsesBack(t *testing.T) {
	limit := 25
	low, high := "2024-01-01", "10"
	req := planner.ChartRequest{
		Table:         "readings",
		CategoryAxis:  "day",
		ValueAxes:     []string{"value", "value"},
		Limit:         &limit,
		CategoryRange: &planner.Range{Min: &low},
		ValueRanges: map[string]planner.Range{
			"value": {Max: &high},
		},
		Aggregation: planner.AggregationMax,
	}

	query := EncodeChartRequest(req)
	assert.Equal(t, "value,value", query.Get("yAxes"))
	assert.False(t, query.Has("yAxis"))

	parsed, err := ParseChartRequest(query)
	require.NoError(t, err)
	assert.Equal(t, req, parsed)
}
