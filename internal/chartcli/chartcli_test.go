package chartcli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-charts/internal/chartapi"
	"tidb-charts/internal/planner"
	"tidb-charts/internal/series"
)

func execute(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

type queryLog struct {
	mu      sync.Mutex
	queries []string
}

func (l *queryLog) add(q string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, q)
}

func (l *queryLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.queries...)
}

func chartServer(t *testing.T, body string) (*httptest.Server, *queryLog) {
	t.Helper()
	queries := &queryLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries.add(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case chartapi.ChartDataPath:
			_, _ = w.Write([]byte(body))
		case chartapi.ChartSchemaPath:
			_, _ = w.Write([]byte(`{"success":true,"table":"v_sales","isView":true,"columns":[{"name":"region","sqlType":"varchar(32)","kind":"text"},{"name":"revenue","sqlType":"decimal(10,2)","kind":"numeric"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, queries
}

func TestQueryCmd_RendersTable(t *testing.T) {
	srv, queries := chartServer(t, `{"success":true,"data":[
		{"x_value":"north","y_value_0":10,"y_value_1":1},
		{"x_value":"north","y_value_0":5,"y_value_1":2},
		{"x_value":"south","y_value_0":4,"y_value_1":3}
	],"count":3,"isMultiValue":true,"yAxes":["revenue","orders"]}`)

	out, err := execute(t, srv, "", "query", "-t", "sales", "-x", "region", "-y", "revenue,orders", "--y-min", "0")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"region", "revenue", "orders"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"north", "15", "3"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"south", "4", "3"}, strings.Fields(lines[2]))

	sent := queries.all()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "yAxes=revenue%2Corders")
	assert.Contains(t, sent[0], "yMin=0")
	assert.NotContains(t, sent[0], "xMin")
}

func TestQueryCmd_EmptyState(t *testing.T) {
	srv, _ := chartServer(t, `{"success":true,"data":[],"count":0,"isMultiValue":false,"yAxes":["value"]}`)

	out, err := execute(t, srv, "", "query", "-t", "readings", "-x", "day", "-y", "value", "--x-min", "2030-01-01")
	require.NoError(t, err)
	assert.Contains(t, out, series.EmptyStateMessage)
}

func TestQueryCmd_RejectsBadAggregationLocally(t *testing.T) {
	srv, queries := chartServer(t, `{}`)

	_, err := execute(t, srv, "", "query", "-t", "readings", "-x", "day", "-y", "value", "-a", "median")
	var invalid *planner.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "aggregation", invalid.Param)
	assert.Empty(t, queries.all())
}

func TestSchemaCmd(t *testing.T) {
	srv, _ := chartServer(t, `{}`)

	out, err := execute(t, srv, "", "schema", "v_sales")
	require.NoError(t, err)
	assert.Contains(t, out, "v_sales (view)")
	assert.Contains(t, out, "decimal(10,2)")
	assert.Contains(t, out, "numeric")
}

func TestWatchCmd_AppliesCommands(t *testing.T) {
	srv, queries := chartServer(t, `{"success":true,"data":[{"x_value":"2024-01-01","y_value_0":15}],"count":1,"isMultiValue":false,"yAxes":["value"]}`)

	out, err := execute(t, srv, "agg avg\nquit\n", "watch", "-t", "readings", "-x", "day", "-y", "value")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-01")

	sent := queries.all()
	require.Len(t, sent, 2)
	assert.True(t, strings.Contains(sent[0], "aggregation=avg") || strings.Contains(sent[1], "aggregation=avg"))
}

func TestRunWatch_ReturnsOnceContextIsCancelled(t *testing.T) {
	srv, _ := chartServer(t, `{"success":true,"data":[],"count":0,"isMultiValue":false,"yAxes":["value"]}`)
	widget := series.NewWidget(series.NewClient(srv.URL), planner.ChartRequest{
		Table:        "readings",
		CategoryAxis: "day",
		ValueAxes:    []string{"value"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	input := strings.Repeat("refresh\n", 64)

	result := make(chan error, 1)
	go func() {
		result <- runWatch(ctx, widget, strings.NewReader(input), io.Discard)
	}()

	select {
	case err := <-result:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runWatch blocked after cancellation")
	}
}

func TestParseWatchLine(t *testing.T) {
	tests := []struct {
		line    string
		want    *series.Command
		quit    bool
		wantErr bool
	}{
		{line: "", want: nil},
		{line: "quit", quit: true},
		{line: "refresh", want: ptr(series.Refresh())},
		{line: "axes day value,total", want: ptr(series.SetAxes("day", "value", "total"))},
		{line: "agg MAX", want: ptr(series.SetAggregation(planner.AggregationMax))},
		{line: "agg median", wantErr: true},
		{line: "axes day", wantErr: true},
		{line: "filter xmin", wantErr: true},
		{line: "filter zmax=3", wantErr: true},
		{line: "plot", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, quit, err := parseWatchLine(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.quit, quit)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWatchLine_Filter(t *testing.T) {
	got, _, err := parseWatchLine("filter xmin=2024-01-01 ymax=10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, series.CommandSetFilter, got.Kind)
	require.NotNil(t, got.CategoryRange)
	assert.Equal(t, "2024-01-01", *got.CategoryRange.Min)
	assert.Nil(t, got.CategoryRange.Max)
	require.NotNil(t, got.ValueRange)
	assert.Equal(t, "10", *got.ValueRange.Max)
}

func ptr[T any](v T) *T {
	return &v
}
