package planner

import (
	"fmt"
	"slices"
	"strings"
)

// Aggregation is the aggregate function applied per value axis on the
// bucketed path.
type Aggregation string

const (
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationCount Aggregation = "count"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
)

// DefaultAggregation applies when a request names none.
const DefaultAggregation = AggregationSum

var aggregations = []Aggregation{AggregationSum, AggregationAvg, AggregationCount, AggregationMin, AggregationMax}

// ParseAggregation parses an aggregation name case-insensitively.
// An empty value yields DefaultAggregation.
func ParseAggregation(value string) (Aggregation, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return DefaultAggregation, nil
	}
	agg := Aggregation(value)
	if !slices.Contains(aggregations, agg) {
		return "", invalidRequest("aggregation", "Invalid aggregation: %s. Allowed: sum, avg, count, min, max", value)
	}
	return agg, nil
}

func (a Aggregation) sqlFunc() string {
	return strings.ToUpper(string(a))
}

// Range holds raw inclusive bounds for one axis. Either side may be nil.
// Bounds are typed by CompileFilters.
type Range struct {
	Min *string
	Max *string
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// ChartRequest describes one chart-data query.
type ChartRequest struct {
	Table        string
	CategoryAxis string
	// ValueAxes are projected in order as y_value_0..N-1. Duplicates are allowed.
	ValueAxes     []string
	Limit         *int
	CategoryRange *Range
	// ValueRanges maps a value axis name to its bounds.
	ValueRanges map[string]Range
	Aggregation Aggregation
}

// Check verifies that required parameters are present and well formed.
// Column existence is checked separately by ValidateFields.
func (r ChartRequest) Check() error {
	if strings.TrimSpace(r.Table) == "" {
		return invalidRequest("table", "Missing required parameter: table")
	}
	if strings.TrimSpace(r.CategoryAxis) == "" {
		return invalidRequest("xAxis", "Missing required parameter: xAxis")
	}
	if len(r.ValueAxes) == 0 {
		return invalidRequest("yAxis", "Missing required parameter: yAxis or yAxes")
	}
	for i, axis := range r.ValueAxes {
		if strings.TrimSpace(axis) == "" {
			return invalidRequest("yAxes", "Empty value axis at position %d", i)
		}
	}
	for axis := range r.ValueRanges {
		if !slices.Contains(r.ValueAxes, axis) {
			return invalidRequest("yMin", "Range given for %s, which is not a requested value axis", axis)
		}
	}
	if r.Aggregation != "" && !slices.Contains(aggregations, r.Aggregation) {
		return invalidRequest("aggregation", "Invalid aggregation: %s", r.Aggregation)
	}
	return nil
}

// EffectiveAggregation returns the request aggregation or the default.
func (r ChartRequest) EffectiveAggregation() Aggregation {
	if r.Aggregation == "" {
		return DefaultAggregation
	}
	return r.Aggregation
}

// String renders the request for logs.
func (r ChartRequest) String() string {
	return fmt.Sprintf("table=%s x=%s y=%s agg=%s", r.Table, r.CategoryAxis, strings.Join(r.ValueAxes, ","), r.EffectiveAggregation())
}
