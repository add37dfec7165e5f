package series

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tidb-charts/internal/chartresult"
	"tidb-charts/internal/logging"
	"tidb-charts/internal/planner"
)

// DefaultDebounce is the trailing delay applied to filter edits.
const DefaultDebounce = 300 * time.Millisecond

// Fetcher loads chart data. *Client implements it.
type Fetcher interface {
	ChartData(ctx context.Context, req planner.ChartRequest) (*chartresult.Response, error)
}

// CommandKind identifies a widget command.
type CommandKind int

const (
	CommandSetAxes CommandKind = iota
	CommandSetFilter
	CommandSetAggregation
	CommandRefresh

	commandFlush
)

// Command mutates a widget's request. Only the fields of its Kind are read.
type Command struct {
	Kind          CommandKind
	CategoryAxis  string
	ValueAxes     []string
	CategoryRange *planner.Range
	// ValueRange bounds every value axis.
	ValueRange  *planner.Range
	Aggregation planner.Aggregation

	done chan struct{}
}

// SetAxes replaces the category and value axes and refetches.
func SetAxes(categoryAxis string, valueAxes ...string) Command {
	return Command{Kind: CommandSetAxes, CategoryAxis: categoryAxis, ValueAxes: valueAxes}
}

// SetFilter replaces the range filters. valueRange applies to every value
// axis, current and future. The refetch is debounced.
func SetFilter(categoryRange, valueRange *planner.Range) Command {
	return Command{Kind: CommandSetFilter, CategoryRange: categoryRange, ValueRange: valueRange}
}

// SetAggregation replaces the aggregation and refetches.
func SetAggregation(agg planner.Aggregation) Command {
	return Command{Kind: CommandSetAggregation, Aggregation: agg}
}

// Refresh refetches the current request.
func Refresh() Command {
	return Command{Kind: CommandRefresh}
}

// State is what a widget currently displays.
type State struct {
	Request planner.ChartRequest
	Series  SeriesSet
	// Err is the last fetch failure. Series keeps the last good render.
	Err error
	// Sequence identifies the fetch that produced this state.
	Sequence uint64
}

// WidgetOption configures a Widget.
type WidgetOption func(*Widget)

// WithDebounce sets the trailing delay for filter edits.
func WithDebounce(d time.Duration) WidgetOption {
	return func(w *Widget) {
		w.debounce = d
	}
}

// WithSequenceTokens drops responses older than the latest issued fetch, so
// the last issued request wins instead of the last resolved one.
func WithSequenceTokens() WidgetOption {
	return func(w *Widget) {
		w.sequenceTokens = true
	}
}

// WithCombine sets how duplicate categories are merged on render.
func WithCombine(mode CombineMode) WidgetOption {
	return func(w *Widget) {
		w.buildOpts.Combine = mode
	}
}

// Widget owns one chart's request and rendered series. Commands may come
// from any goroutine.
type Widget struct {
	fetcher        Fetcher
	debounce       time.Duration
	sequenceTokens bool
	buildOpts      Options

	commands chan Command
	updates  chan State

	mu         sync.Mutex
	req        planner.ChartRequest
	valueRange *planner.Range
	state      State
	timer      *time.Timer
	issued     uint64
	fetches    sync.WaitGroup
}

// NewWidget creates a widget showing initial. Nothing is fetched until a
// command arrives.
func NewWidget(fetcher Fetcher, initial planner.ChartRequest, opts ...WidgetOption) *Widget {
	w := &Widget{
		fetcher:  fetcher,
		debounce: DefaultDebounce,
		commands: make(chan Command, 16),
		updates:  make(chan State, 1),
		req:      initial,
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, axis := range initial.ValueAxes {
		if r, ok := initial.ValueRanges[axis]; ok && !r.IsZero() {
			w.valueRange = &r
			break
		}
	}
	w.state.Request = initial
	return w
}

// Commands accepts commands for Run to apply.
func (w *Widget) Commands() chan<- Command {
	return w.commands
}

// Updates delivers each new State. Only the latest unread state is kept.
func (w *Widget) Updates() <-chan State {
	return w.updates
}

// State returns the current display state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run applies commands until ctx is done, then waits for in-flight fetches.
// A pending debounced fetch is dropped.
func (w *Widget) Run(ctx context.Context) error {
	defer w.fetches.Wait()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return ctx.Err()
		case cmd := <-w.commands:
			w.apply(ctx, cmd)
			if cmd.Kind == commandFlush {
				// Nothing else adds fetches while Run is blocked here.
				w.fetches.Wait()
				close(cmd.done)
			}
		}
	}
}

// Flush applies every command sent before it, fires a pending debounced
// fetch, and waits until in-flight fetches have resolved. Run must be running.
func (w *Widget) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case w.commands <- Command{Kind: commandFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Widget) apply(ctx context.Context, cmd Command) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch cmd.Kind {
	case CommandSetAxes:
		w.req.CategoryAxis = cmd.CategoryAxis
		w.req.ValueAxes = append([]string(nil), cmd.ValueAxes...)
	case CommandSetFilter:
		w.req.CategoryRange = cmd.CategoryRange
		w.valueRange = cmd.ValueRange
		w.scheduleLocked(ctx)
		return
	case CommandSetAggregation:
		w.req.Aggregation = cmd.Aggregation
	case CommandRefresh:
	case commandFlush:
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
			w.fetchLocked(ctx)
		}
		return
	default:
		logging.FromContext(ctx).Warn("ignoring unknown widget command", slog.Int("kind", int(cmd.Kind)))
		return
	}

	// An immediate fetch already carries any pending filter edit.
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.fetchLocked(ctx)
}

// scheduleLocked restarts the debounce timer so only the last edit in a
// burst fetches.
func (w *Widget) scheduleLocked(ctx context.Context) {
	if w.timer != nil {
		w.timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.timer != timer || ctx.Err() != nil {
			return
		}
		w.timer = nil
		w.fetchLocked(ctx)
	})
	w.timer = timer
}

func (w *Widget) fetchLocked(ctx context.Context) {
	w.issued++
	seq := w.issued
	req := w.requestLocked()

	// Superseded fetches still run to completion.
	fetchCtx := context.WithoutCancel(ctx)
	w.fetches.Add(1)
	go func() {
		defer w.fetches.Done()
		resp, err := w.fetcher.ChartData(fetchCtx, req)
		w.resolve(fetchCtx, seq, req, resp, err)
	}()
}

// requestLocked copies the current request with the value range expanded
// onto each value axis.
func (w *Widget) requestLocked() planner.ChartRequest {
	req := w.req
	req.ValueAxes = append([]string(nil), w.req.ValueAxes...)
	req.ValueRanges = nil
	if w.valueRange != nil && !w.valueRange.IsZero() {
		req.ValueRanges = make(map[string]planner.Range, len(req.ValueAxes))
		for _, axis := range req.ValueAxes {
			req.ValueRanges[axis] = *w.valueRange
		}
	}
	return req
}

func (w *Widget) resolve(ctx context.Context, seq uint64, req planner.ChartRequest, resp *chartresult.Response, err error) {
	w.mu.Lock()
	if w.sequenceTokens && seq != w.issued {
		w.mu.Unlock()
		logging.FromContext(ctx).Debug("dropping stale chart response",
			slog.Uint64("sequence", seq),
			slog.Uint64("latest", w.issued),
		)
		return
	}

	next := State{Request: req, Series: w.state.Series, Sequence: seq}
	if err != nil {
		next.Err = err
	} else {
		next.Series = Build(resp.Data, resp.YAxes, w.buildOpts)
	}
	w.state = next
	w.publishLocked(next)
	w.mu.Unlock()
}

func (w *Widget) publishLocked(state State) {
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- state:
	default:
	}
}
