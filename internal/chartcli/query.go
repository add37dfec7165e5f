package chartcli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tidb-charts/internal/chartapi"
	"tidb-charts/internal/planner"
	"tidb-charts/internal/series"
)

type requestFlags struct {
	table       string
	xAxis       string
	yAxes       []string
	limit       int
	xMin, xMax  string
	yMin, yMax  string
	aggregation string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.table, "table", "t", "", "Table or view to chart")
	cmd.Flags().StringVarP(&f.xAxis, "x", "x", "", "Category axis column")
	cmd.Flags().StringSliceVarP(&f.yAxes, "y", "y", nil, "Value axis columns (repeat or comma-separate)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Row limit (0 uses the server default)")
	cmd.Flags().StringVar(&f.xMin, "x-min", "", "Inclusive category lower bound")
	cmd.Flags().StringVar(&f.xMax, "x-max", "", "Inclusive category upper bound")
	cmd.Flags().StringVar(&f.yMin, "y-min", "", "Inclusive lower bound for every value axis")
	cmd.Flags().StringVar(&f.yMax, "y-max", "", "Inclusive upper bound for every value axis")
	cmd.Flags().StringVarP(&f.aggregation, "aggregation", "a", "", "sum, avg, count, min or max")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
}

// request reuses the server's parameter parsing so both sides agree.
func (f *requestFlags) request(cmd *cobra.Command) (planner.ChartRequest, error) {
	query := url.Values{}
	query.Set("table", f.table)
	query.Set("xAxis", f.xAxis)
	query.Set("yAxes", strings.Join(f.yAxes, ","))
	if f.limit > 0 {
		query.Set("limit", strconv.Itoa(f.limit))
	}
	bounds := []struct {
		flag, key, value string
	}{
		{"x-min", "xMin", f.xMin},
		{"x-max", "xMax", f.xMax},
		{"y-min", "yMin", f.yMin},
		{"y-max", "yMax", f.yMax},
	}
	for _, b := range bounds {
		if cmd.Flags().Changed(b.flag) {
			query.Set(b.key, b.value)
		}
	}
	query.Set("aggregation", f.aggregation)
	return chartapi.ParseChartRequest(query)
}

func newQueryCmd(opts *options) *cobra.Command {
	var (
		flags   requestFlags
		format  string
		combine string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch chart data and render it",
		Example: `  chartctl query -t readings -x day -y value
  chartctl query -t sales -x region -y revenue,orders -a avg --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}
			mode, err := parseCombine(combine)
			if err != nil {
				return err
			}

			resp, err := opts.client().ChartData(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to fetch chart data: %w", err)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			case "table":
				set := series.Build(resp.Data, resp.YAxes, series.Options{Combine: mode})
				_, err := fmt.Fprintln(out, RenderSeries(req.CategoryAxis, set))
				return err
			default:
				return fmt.Errorf("unknown output format %q (want table or json)", format)
			}
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, json)")
	cmd.Flags().StringVar(&combine, "combine", "sum", "How to merge duplicate categories (sum, last)")

	return cmd
}

func parseCombine(value string) (series.CombineMode, error) {
	switch value {
	case "", "sum":
		return series.CombineSum, nil
	case "last":
		return series.CombineLast, nil
	default:
		return 0, fmt.Errorf("unknown combine mode %q (want sum or last)", value)
	}
}
