// Package series turns normalized chart rows into render-ready series and
// drives a chart widget from external commands.
package series

import (
	"github.com/spf13/cast"

	"tidb-charts/internal/chartresult"
)

// EmptyStateMessage is shown in place of a chart when a request returns no rows.
const EmptyStateMessage = "No data matches the current selection"

// CombineMode decides how values that share a category are merged.
type CombineMode int

const (
	// CombineSum adds values that share a category. Non-numeric values count as 0.
	CombineSum CombineMode = iota
	// CombineLast keeps the last value seen for a category. Useful for raw
	// line views where rows are already one per category.
	CombineLast
)

// Options controls Build.
type Options struct {
	Combine CombineMode
}

// Series is one value axis across all categories.
type Series struct {
	Label  string
	Color  string
	Values []float64
}

// SeriesSet is the render input for one chart. Every Series has one value
// per category, in category order.
type SeriesSet struct {
	Categories []string
	Series     []Series
}

// Empty reports whether there is nothing to draw.
func (s SeriesSet) Empty() bool {
	return len(s.Categories) == 0
}

// SeriesCount is the number of value axes in rows, read from the first row.
func SeriesCount(rows []chartresult.Row) int {
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0].Values)
}

// Build groups rows by category in first-seen order and combines duplicate
// categories per opts. labels name the series by position; missing labels
// fall back to the row key.
func Build(rows []chartresult.Row, labels []string, opts Options) SeriesSet {
	count := SeriesCount(rows)
	if count == 0 {
		return SeriesSet{}
	}

	index := make(map[string]int, len(rows))
	categories := make([]string, 0, len(rows))
	values := make([][]float64, count)

	for _, row := range rows {
		category := categoryLabel(row.Category)
		pos, seen := index[category]
		if !seen {
			pos = len(categories)
			index[category] = pos
			categories = append(categories, category)
			for i := range values {
				values[i] = append(values[i], 0)
			}
		}
		for i := 0; i < count; i++ {
			var v interface{}
			if i < len(row.Values) {
				v = row.Values[i]
			}
			n := numeric(v)
			if opts.Combine == CombineLast {
				values[i][pos] = n
			} else {
				values[i][pos] += n
			}
		}
	}

	set := SeriesSet{Categories: categories, Series: make([]Series, count)}
	for i := range set.Series {
		label := chartresult.ValueKey(i)
		if i < len(labels) && labels[i] != "" {
			label = labels[i]
		}
		set.Series[i] = Series{Label: label, Color: ColorFor(i), Values: values[i]}
	}
	return set
}

func categoryLabel(v interface{}) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

func numeric(v interface{}) float64 {
	if v == nil {
		return 0
	}
	n, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return n
}

var palette = []string{
	"#4E79A7", "#F28E2B", "#E15759", "#76B7B2", "#59A14F",
	"#EDC948", "#B07AA1", "#FF9DA7", "#9C755F", "#BAB0AC",
}

// ColorFor returns the palette color for the i-th series. The palette wraps.
func ColorFor(i int) string {
	if i < 0 {
		i = -i
	}
	return palette[i%len(palette)]
}
