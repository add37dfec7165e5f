//go:build integration

package chartsvc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-charts/internal/dbexec"
	"tidb-charts/internal/planner"
	"tidb-charts/internal/schemafilter"
	"tidb-charts/internal/testutil/tidbtest"
)

func seedReadings(t *testing.T) *tidbtest.DB {
	t.Helper()
	tdb := tidbtest.New(t)
	tdb.Exec(t,
		"CREATE TABLE readings (id BIGINT PRIMARY KEY AUTO_INCREMENT, day DATETIME, sensor VARCHAR(16), value INT)",
		"INSERT INTO readings (day, sensor, value) VALUES "+
			"('2024-01-01 08:00:00', 'A', 10), ('2024-01-01 20:00:00', 'A', 5), ('2024-01-02 00:00:00', 'A', 7)",
	)
	return tdb
}

func integrationService(tdb *tidbtest.DB, bucketColumns map[string]string) *Service {
	return New(tdb.DB, dbexec.NewReadOnlyExecutor(dbexec.ReadOnlyExecutorConfig{DB: tdb.DB}), Config{
		DatabaseName:         tdb.Name,
		Filters:              schemafilter.Config{ScanViewsEnabled: true},
		BucketColumns:        bucketColumns,
		Limits:               planner.DefaultLimits(),
		QueryTimeout:         10 * time.Second,
		RetryMaxAttempts:     2,
		RetryInitialInterval: 50 * time.Millisecond,
	}, nil)
}

func TestIntegration_BucketedSumPerDay(t *testing.T) {
	tdb := seedReadings(t)
	svc := integrationService(tdb, map[string]string{"readings": "day"})

	req := planner.ChartRequest{
		Table:        "readings",
		CategoryAxis: "day",
		ValueAxes:    []string{"value"},
		Aggregation:  planner.AggregationSum,
	}
	resp, err := svc.ChartData(context.Background(), req)
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true,
		"data": [{"x_value":"2024-01-01","y_value_0":15},{"x_value":"2024-01-02","y_value_0":7}],
		"count": 2,
		"isMultiValue": false,
		"yAxes": ["value"]
	}`, string(data))

	again, err := svc.ChartData(context.Background(), req)
	require.NoError(t, err)
	againData, err := json.Marshal(again)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(againData))
}

func TestIntegration_RawRowsAreLimitedAndFiltered(t *testing.T) {
	tdb := seedReadings(t)
	svc := integrationService(tdb, nil)

	limit := 2
	low := "6"
	resp, err := svc.ChartData(context.Background(), planner.ChartRequest{
		Table:        "readings",
		CategoryAxis: "sensor",
		ValueAxes:    []string{"value", "value"},
		Limit:        &limit,
		ValueRanges:  map[string]planner.Range{"value": {Min: &low}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.True(t, resp.IsMultiValue)
	for _, row := range resp.Data {
		assert.Equal(t, "A", row.Category)
		require.Len(t, row.Values, 2)
		assert.Equal(t, row.Values[0], row.Values[1])
	}
}

func TestIntegration_TextAxisAggregatesToZero(t *testing.T) {
	tdb := seedReadings(t)
	svc := integrationService(tdb, map[string]string{"readings": "day"})

	for _, agg := range []planner.Aggregation{planner.AggregationSum, planner.AggregationAvg, planner.AggregationMax} {
		resp, err := svc.ChartData(context.Background(), planner.ChartRequest{
			Table:        "readings",
			CategoryAxis: "day",
			ValueAxes:    []string{"sensor"},
			Aggregation:  agg,
		})
		require.NoError(t, err)
		require.Len(t, resp.Data, 2)
		for _, row := range resp.Data {
			require.NotNil(t, row.Values[0], "aggregation %s", agg)
			assert.EqualValues(t, 0, row.Values[0], "aggregation %s", agg)
		}
	}
}

func TestIntegration_EmptySelection(t *testing.T) {
	tdb := seedReadings(t)
	svc := integrationService(tdb, map[string]string{"readings": "day"})

	from := "2030-01-01"
	resp, err := svc.ChartData(context.Background(), planner.ChartRequest{
		Table:         "readings",
		CategoryAxis:  "day",
		ValueAxes:     []string{"value"},
		CategoryRange: &planner.Range{Min: &from},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
	assert.Equal(t, 0, resp.Count)
}

func TestIntegration_ViewsAndBrokenViews(t *testing.T) {
	tdb := seedReadings(t)
	tdb.Exec(t,
		"CREATE VIEW daily_readings AS SELECT day, value FROM readings",
		"CREATE TABLE scratch (a INT)",
		"CREATE VIEW scratch_view AS SELECT a FROM scratch",
		"DROP TABLE scratch",
	)
	svc := integrationService(tdb, map[string]string{"daily_readings": "day"})

	desc, err := svc.Describe(context.Background(), "daily_readings")
	require.NoError(t, err)
	assert.True(t, desc.Table.IsView)
	assert.Equal(t, "day", desc.Profile.BucketColumn)

	_, err = svc.ChartData(context.Background(), planner.ChartRequest{
		Table:        "scratch_view",
		CategoryAxis: "a",
		ValueAxes:    []string{"a"},
	})
	require.Error(t, err)
	assert.Equal(t, KindBrokenDependency, ErrorKind(err))
	assert.True(t, IsRequestError(err))

	_, err = svc.ChartData(context.Background(), planner.ChartRequest{
		Table:        "missing_table",
		CategoryAxis: "a",
		ValueAxes:    []string{"a"},
	})
	assert.Equal(t, KindUnknownTable, ErrorKind(err))
}
