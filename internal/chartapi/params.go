package chartapi

import (
	"net/url"
	"strconv"
	"strings"

	"tidb-charts/internal/planner"
)

// ParseChartRequest reads chart-data query parameters. yAxes takes
// precedence over yAxis, and yMin/yMax bound every value axis.
// Column existence is not checked here.
func ParseChartRequest(query url.Values) (planner.ChartRequest, error) {
	req := planner.ChartRequest{
		Table:        strings.TrimSpace(query.Get("table")),
		CategoryAxis: strings.TrimSpace(query.Get("xAxis")),
		ValueAxes:    parseValueAxes(query),
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return planner.ChartRequest{}, &planner.InvalidRequestError{
				Param:   "limit",
				Message: "Invalid limit: " + raw + " (must be a positive integer)",
			}
		}
		req.Limit = &limit
	}

	if xRange := parseRange(query, "xMin", "xMax"); !xRange.IsZero() {
		req.CategoryRange = &xRange
	}
	if yRange := parseRange(query, "yMin", "yMax"); !yRange.IsZero() {
		req.ValueRanges = make(map[string]planner.Range, len(req.ValueAxes))
		for _, axis := range req.ValueAxes {
			if axis != "" {
				req.ValueRanges[axis] = yRange
			}
		}
	}

	agg, err := planner.ParseAggregation(query.Get("aggregation"))
	if err != nil {
		return planner.ChartRequest{}, err
	}
	req.Aggregation = agg

	return req, nil
}

func parseValueAxes(query url.Values) []string {
	raw := strings.TrimSpace(query.Get("yAxes"))
	if raw == "" {
		if single := strings.TrimSpace(query.Get("yAxis")); single != "" {
			return []string{single}
		}
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseRange(query url.Values, minKey, maxKey string) planner.Range {
	var r planner.Range
	if query.Has(minKey) {
		v := query.Get(minKey)
		r.Min = &v
	}
	if query.Has(maxKey) {
		v := query.Get(maxKey)
		r.Max = &v
	}
	return r
}

// EncodeChartRequest renders req as chart-data query parameters. Value axis
// bounds are sent as yMin/yMax, taken from the first axis that has any.
func EncodeChartRequest(req planner.ChartRequest) url.Values {
	query := url.Values{}
	query.Set("table", req.Table)
	query.Set("xAxis", req.CategoryAxis)
	if len(req.ValueAxes) == 1 {
		query.Set("yAxis", req.ValueAxes[0])
	} else if len(req.ValueAxes) > 1 {
		query.Set("yAxes", strings.Join(req.ValueAxes, ","))
	}
	if req.Limit != nil {
		query.Set("limit", strconv.Itoa(*req.Limit))
	}
	if req.CategoryRange != nil {
		setRange(query, *req.CategoryRange, "xMin", "xMax")
	}
	for _, axis := range req.ValueAxes {
		if r, ok := req.ValueRanges[axis]; ok && !r.IsZero() {
			setRange(query, r, "yMin", "yMax")
			break
		}
	}
	if req.Aggregation != "" {
		query.Set("aggregation", string(req.Aggregation))
	}
	return query
}

func setRange(query url.Values, r planner.Range, minKey, maxKey string) {
	if r.Min != nil {
		query.Set(minKey, *r.Min)
	}
	if r.Max != nil {
		query.Set(maxKey, *r.Max)
	}
}
