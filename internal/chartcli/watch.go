package chartcli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidb-charts/internal/planner"
	"tidb-charts/internal/series"
)

const watchHelp = `Commands (one per line):
  refresh
  axes <x> <y>[,<y>...]
  agg <sum|avg|count|min|max>
  filter [xmin=V] [xmax=V] [ymin=V] [ymax=V]
  quit`

func newWatchCmd(opts *options) *cobra.Command {
	var (
		flags          requestFlags
		debounce       time.Duration
		sequenceTokens bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Drive a live chart from commands read on stdin",
		Long:  "watch keeps one chart open and applies commands read from stdin.\n\n" + watchHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}

			widgetOpts := []series.WidgetOption{series.WithDebounce(debounce)}
			if sequenceTokens {
				widgetOpts = append(widgetOpts, series.WithSequenceTokens())
			}
			widget := series.NewWidget(opts.client(), req, widgetOpts...)
			return runWatch(cmd.Context(), widget, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", series.DefaultDebounce, "Delay before a filter edit refetches")
	cmd.Flags().BoolVar(&sequenceTokens, "latest-issued", false, "Ignore responses to superseded requests")

	return cmd
}

func runWatch(ctx context.Context, widget *series.Widget, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = widget.Run(ctx)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	send := func(command series.Command) bool {
		select {
		case widget.Commands() <- command:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(series.Refresh()) {
		cancel()
		<-runDone
		return ctx.Err()
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			command, quit, err := parseWatchLine(line)
			if err != nil {
				_, _ = fmt.Fprintln(out, mutedStyle.Render(err.Error()))
				continue
			}
			if quit {
				break loop
			}
			if command != nil && !send(*command) {
				break loop
			}
		case state := <-widget.Updates():
			printState(out, state)
		}
	}

	err := widget.Flush(ctx)
	select {
	case state := <-widget.Updates():
		printState(out, state)
	default:
	}
	cancel()
	<-runDone
	return err
}

func printState(out io.Writer, state series.State) {
	if state.Err != nil {
		_, _ = fmt.Fprintln(out, mutedStyle.Render("fetch failed: "+state.Err.Error()))
		return
	}
	_, _ = fmt.Fprintln(out, titleStyle.Render(state.Request.String()))
	_, _ = fmt.Fprintln(out, RenderSeries(state.Request.CategoryAxis, state.Series))
}

// parseWatchLine turns one input line into a widget command. Blank lines
// yield no command.
func parseWatchLine(line string) (*series.Command, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false, nil
	}

	switch fields[0] {
	case "quit", "exit":
		return nil, true, nil
	case "refresh":
		cmd := series.Refresh()
		return &cmd, false, nil
	case "axes":
		if len(fields) != 3 {
			return nil, false, fmt.Errorf("usage: axes <x> <y>[,<y>...]")
		}
		cmd := series.SetAxes(fields[1], strings.Split(fields[2], ",")...)
		return &cmd, false, nil
	case "agg":
		if len(fields) != 2 {
			return nil, false, fmt.Errorf("usage: agg <sum|avg|count|min|max>")
		}
		agg, err := planner.ParseAggregation(fields[1])
		if err != nil {
			return nil, false, err
		}
		cmd := series.SetAggregation(agg)
		return &cmd, false, nil
	case "filter":
		cmd, err := parseFilter(fields[1:])
		if err != nil {
			return nil, false, err
		}
		return &cmd, false, nil
	default:
		return nil, false, fmt.Errorf("unknown command %q\n%s", fields[0], watchHelp)
	}
}

func parseFilter(args []string) (series.Command, error) {
	var x, y planner.Range
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return series.Command{}, fmt.Errorf("filter arguments look like key=value, got %q", arg)
		}
		v := value
		switch key {
		case "xmin":
			x.Min = &v
		case "xmax":
			x.Max = &v
		case "ymin":
			y.Min = &v
		case "ymax":
			y.Max = &v
		default:
			return series.Command{}, fmt.Errorf("unknown filter key %q", key)
		}
	}

	var categoryRange, valueRange *planner.Range
	if !x.IsZero() {
		categoryRange = &x
	}
	if !y.IsZero() {
		valueRange = &y
	}
	return series.SetFilter(categoryRange, valueRange), nil
}
