package planner

import (
	"math"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

var boundLayouts = []string{
	dateLayout,
	time.RFC3339Nano,
	datetimeLayout,
	"2006-01-02T15:04:05",
}

// CompileFilters returns WHERE predicates for req. Every projected axis gets
// an IS NOT NULL predicate, so a NULL on any requested axis drops the row.
// Range bounds follow: the bucket column compares by calendar day, other
// temporal columns by datetime, and all remaining axes numerically.
// Bounds are always bound parameters.
func CompileFilters(req ChartRequest, mapper ExpressionMapper) ([]sq.Sqlizer, error) {
	axes := distinctAxes(req)
	predicates := make([]sq.Sqlizer, 0, len(axes)*2)
	for _, axis := range axes {
		predicates = append(predicates, sq.NotEq{mapper.Column(axis): nil})
	}

	if req.CategoryRange != nil {
		conds, err := compileRange(mapper, req.CategoryAxis, *req.CategoryRange, "xMin", "xMax")
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, conds...)
	}

	seen := make(map[string]bool, len(req.ValueAxes))
	for _, axis := range req.ValueAxes {
		if seen[axis] {
			continue
		}
		seen[axis] = true
		r, ok := req.ValueRanges[axis]
		if !ok {
			continue
		}
		conds, err := compileRange(mapper, axis, r, "yMin", "yMax")
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, conds...)
	}

	return predicates, nil
}

func distinctAxes(req ChartRequest) []string {
	axes := make([]string, 0, len(req.ValueAxes)+1)
	seen := make(map[string]bool, len(req.ValueAxes)+1)
	for _, axis := range append([]string{req.CategoryAxis}, req.ValueAxes...) {
		if seen[axis] {
			continue
		}
		seen[axis] = true
		axes = append(axes, axis)
	}
	return axes
}

func compileRange(mapper ExpressionMapper, axis string, r Range, minParam, maxParam string) ([]sq.Sqlizer, error) {
	var conds []sq.Sqlizer
	bounds := []struct {
		raw   *string
		param string
		op    string
	}{
		{r.Min, minParam, ">="},
		{r.Max, maxParam, "<="},
	}
	for _, b := range bounds {
		if b.raw == nil || strings.TrimSpace(*b.raw) == "" {
			continue
		}
		cond, err := compileBound(mapper, axis, strings.TrimSpace(*b.raw), b.param, b.op)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func compileBound(mapper ExpressionMapper, axis, raw, param, op string) (sq.Sqlizer, error) {
	quoted := mapper.Column(axis)
	switch {
	case mapper.IsBucketColumn(axis):
		t, err := parseTimeBound(raw)
		if err != nil {
			return nil, invalidRequest(param, "Invalid %s for %s: expected a date (YYYY-MM-DD), got %q", param, axis, raw)
		}
		return sq.Expr("DATE("+quoted+") "+op+" ?", t.Format(dateLayout)), nil
	case mapper.isTemporal(axis):
		t, err := parseTimeBound(raw)
		if err != nil {
			return nil, invalidRequest(param, "Invalid %s for %s: expected a date or datetime, got %q", param, axis, raw)
		}
		return sq.Expr(quoted+" "+op+" ?", t.Format(datetimeLayout)), nil
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, invalidRequest(param, "Invalid %s for %s: expected a number, got %q", param, axis, raw)
		}
		return sq.Expr(quoted+" "+op+" ?", f), nil
	}
}

func parseTimeBound(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range boundLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
