package series

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-charts/internal/chartapi"
	"tidb-charts/internal/planner"
)

func TestClient_ChartData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chartapi.ChartDataPath, r.URL.Path)
		assert.Equal(t, "readings", r.URL.Query().Get("table"))
		assert.Equal(t, "value,sensor", r.URL.Query().Get("yAxes"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[{"x_value":"2024-01-01","y_value_0":15,"y_value_1":2}],"count":1,"isMultiValue":true,"yAxes":["value","sensor"]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL+"/", WithHTTPClient(srv.Client())).ChartData(context.Background(), planner.ChartRequest{
		Table:        "readings",
		CategoryAxis: "day",
		ValueAxes:    []string{"value", "sensor"},
	})
	require.NoError(t, err)

	assert.True(t, resp.IsMultiValue)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 2, SeriesCount(resp.Data))
	assert.Equal(t, []interface{}{15.0, 2.0}, resp.Data[0].Values)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"Invalid yAxis column name: sensor_count. Allowed: day, value"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ChartData(context.Background(), planner.ChartRequest{Table: "readings"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid yAxis column name: sensor_count. Allowed: day, value", apiErr.Message)
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Schema(context.Background(), "readings")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestClient_Schema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chartapi.ChartSchemaPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"table":"readings","isView":false,"bucketColumn":"day","columns":[{"name":"day","sqlType":"date","kind":"temporal"}]}`))
	}))
	defer srv.Close()

	schema, err := NewClient(srv.URL).Schema(context.Background(), "readings")
	require.NoError(t, err)
	assert.Equal(t, "day", schema.BucketColumn)
	require.Len(t, schema.Columns, 1)
	assert.Equal(t, "temporal", schema.Columns[0].Kind)
}
