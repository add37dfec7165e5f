package series

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-charts/internal/chartresult"
	"tidb-charts/internal/planner"
)

type recordingFetcher struct {
	mu    sync.Mutex
	calls []planner.ChartRequest
}

func (f *recordingFetcher) ChartData(_ context.Context, req planner.ChartRequest) (*chartresult.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	resp := chartresult.NewResponse([]chartresult.Row{{Category: "2024-01-01", Values: []interface{}{1.0}}}, req.ValueAxes)
	return &resp, nil
}

func (f *recordingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// gatedFetcher blocks each call until the test releases it with a category.
type gatedFetcher struct {
	started chan int
	gates   []chan string
	mu      sync.Mutex
	next    int
}

func newGatedFetcher(n int) *gatedFetcher {
	f := &gatedFetcher{started: make(chan int, n)}
	for i := 0; i < n; i++ {
		f.gates = append(f.gates, make(chan string, 1))
	}
	return f
}

func (f *gatedFetcher) ChartData(_ context.Context, req planner.ChartRequest) (*chartresult.Response, error) {
	f.mu.Lock()
	i := f.next
	f.next++
	f.mu.Unlock()

	f.started <- i
	category := <-f.gates[i]
	resp := chartresult.NewResponse([]chartresult.Row{{Category: category, Values: []interface{}{1.0}}}, req.ValueAxes)
	return &resp, nil
}

func runWidget(t *testing.T, w *Widget) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitUpdate(t *testing.T, w *Widget) State {
	t.Helper()
	select {
	case state := <-w.Updates():
		return state
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for widget update")
		return State{}
	}
}

func waitStarted(t *testing.T, f *gatedFetcher) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch to start")
	}
}

func baseRequest() planner.ChartRequest {
	return planner.ChartRequest{Table: "readings", CategoryAxis: "day", ValueAxes: []string{"value"}}
}

func TestWidget_FilterBurstFetchesOnce(t *testing.T) {
	fetcher := &recordingFetcher{}
	w := NewWidget(fetcher, baseRequest(), WithDebounce(30*time.Millisecond))
	runWidget(t, w)

	for _, bound := range []string{"1", "2", "3"} {
		high := bound
		w.Commands() <- SetFilter(nil, &planner.Range{Max: &high})
	}

	state := waitUpdate(t, w)
	require.NoError(t, state.Err)
	require.NotNil(t, state.Request.ValueRanges["value"].Max)
	assert.Equal(t, "3", *state.Request.ValueRanges["value"].Max)

	assert.Never(t, func() bool { return fetcher.callCount() > 1 }, 150*time.Millisecond, 10*time.Millisecond)
}

func TestWidget_ImmediateCommandAbsorbsPendingFilter(t *testing.T) {
	fetcher := &recordingFetcher{}
	w := NewWidget(fetcher, baseRequest(), WithDebounce(time.Hour))
	runWidget(t, w)

	low := "2024-01-01"
	w.Commands() <- SetFilter(&planner.Range{Min: &low}, nil)
	w.Commands() <- SetAggregation(planner.AggregationAvg)

	state := waitUpdate(t, w)
	assert.Equal(t, planner.AggregationAvg, state.Request.Aggregation)
	require.NotNil(t, state.Request.CategoryRange)
	assert.Equal(t, low, *state.Request.CategoryRange.Min)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestWidget_SetAxesRendersLabels(t *testing.T) {
	w := NewWidget(&recordingFetcher{}, baseRequest())
	runWidget(t, w)

	w.Commands() <- SetAxes("day", "value", "value")

	state := waitUpdate(t, w)
	assert.Equal(t, []string{"value", "value"}, state.Request.ValueAxes)
	require.Len(t, state.Series.Series, 1)
	assert.Equal(t, "value", state.Series.Series[0].Label)
	assert.Equal(t, state, w.State())
}

func TestWidget_LastResolvedWins(t *testing.T) {
	fetcher := newGatedFetcher(2)
	w := NewWidget(fetcher, baseRequest())
	runWidget(t, w)

	w.Commands() <- Refresh()
	waitStarted(t, fetcher)
	w.Commands() <- Refresh()
	waitStarted(t, fetcher)

	fetcher.gates[1] <- "second"
	assert.Equal(t, []string{"second"}, waitUpdate(t, w).Series.Categories)

	fetcher.gates[0] <- "first"
	state := waitUpdate(t, w)
	assert.Equal(t, []string{"first"}, state.Series.Categories)
	assert.Equal(t, uint64(1), state.Sequence)
}

func TestWidget_SequenceTokensDropStaleResponses(t *testing.T) {
	fetcher := newGatedFetcher(2)
	w := NewWidget(fetcher, baseRequest(), WithSequenceTokens())
	runWidget(t, w)

	w.Commands() <- Refresh()
	waitStarted(t, fetcher)
	w.Commands() <- Refresh()
	waitStarted(t, fetcher)

	fetcher.gates[1] <- "second"
	assert.Equal(t, []string{"second"}, waitUpdate(t, w).Series.Categories)

	fetcher.gates[0] <- "first"
	assert.Never(t, func() bool {
		return w.State().Series.Categories[0] != "second"
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, uint64(2), w.State().Sequence)
}

type failingFetcher struct{}

func (failingFetcher) ChartData(context.Context, planner.ChartRequest) (*chartresult.Response, error) {
	return nil, &APIError{StatusCode: 500, Message: "Error 1105: out of memory quota"}
}

func TestWidget_FetchErrorKeepsSeries(t *testing.T) {
	w := NewWidget(failingFetcher{}, baseRequest())
	runWidget(t, w)

	w.Commands() <- Refresh()
	state := waitUpdate(t, w)

	var apiErr *APIError
	require.ErrorAs(t, state.Err, &apiErr)
	assert.True(t, state.Series.Empty())
}

func TestWidget_ValueRangeFollowsAxes(t *testing.T) {
	fetcher := &recordingFetcher{}
	w := NewWidget(fetcher, baseRequest(), WithDebounce(time.Hour))
	runWidget(t, w)

	high := "100"
	w.Commands() <- SetFilter(nil, &planner.Range{Max: &high})
	w.Commands() <- SetAxes("day", "value", "sensor_total")

	state := waitUpdate(t, w)
	require.Len(t, state.Request.ValueRanges, 2)
	for _, axis := range []string{"value", "sensor_total"} {
		require.NotNil(t, state.Request.ValueRanges[axis].Max)
		assert.Equal(t, "100", *state.Request.ValueRanges[axis].Max)
	}
	assert.NoError(t, state.Request.Check())
}

func TestWidget_FlushFiresPendingFilter(t *testing.T) {
	fetcher := &recordingFetcher{}
	w := NewWidget(fetcher, baseRequest(), WithDebounce(time.Hour))
	runWidget(t, w)

	low := "2024-01-01"
	w.Commands() <- SetFilter(&planner.Range{Min: &low}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Flush(ctx))

	assert.Equal(t, 1, fetcher.callCount())
	state := w.State()
	require.NotNil(t, state.Request.CategoryRange)
	assert.Equal(t, low, *state.Request.CategoryRange.Min)
}
