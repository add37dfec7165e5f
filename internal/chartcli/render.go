package chartcli

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tidb-charts/internal/chartapi"
	"tidb-charts/internal/series"
)

const columnGap = "  "

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8")).Italic(true)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
)

type column struct {
	header string
	style  lipgloss.Style
	cells  []string
	right  bool
}

func (c column) width() int {
	w := lipgloss.Width(c.header)
	for _, cell := range c.cells {
		w = max(w, lipgloss.Width(cell))
	}
	return w
}

func renderColumns(columns []column) string {
	if len(columns) == 0 {
		return ""
	}
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = c.width()
	}

	lines := make([]string, 0, len(columns[0].cells)+1)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.style.Width(widths[i]).Render(c.header)
	}
	lines = append(lines, strings.Join(header, columnGap))

	for row := range columns[0].cells {
		cells := make([]string, len(columns))
		for i, c := range columns {
			style := lipgloss.NewStyle().Width(widths[i])
			if c.right {
				style = style.Align(lipgloss.Right)
			}
			cells[i] = style.Render(c.cells[row])
		}
		lines = append(lines, strings.Join(cells, columnGap))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderSeries draws set as a table with one colored column per series.
// An empty set renders the empty-state message.
func RenderSeries(categoryLabel string, set series.SeriesSet) string {
	if set.Empty() {
		return mutedStyle.Render(series.EmptyStateMessage)
	}

	columns := []column{{header: categoryLabel, style: headerStyle, cells: set.Categories}}
	for _, s := range set.Series {
		cells := make([]string, len(s.Values))
		for i, v := range s.Values {
			cells[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		columns = append(columns, column{
			header: s.Label,
			style:  headerStyle.Foreground(lipgloss.Color(s.Color)),
			cells:  cells,
			right:  true,
		})
	}
	return renderColumns(columns)
}

// RenderSchema lists the exposed columns of a table.
func RenderSchema(schema *chartapi.SchemaResponse) string {
	title := schema.Table
	if schema.IsView {
		title += " (view)"
	}
	if schema.BucketColumn != "" {
		title += " bucketed by " + schema.BucketColumn
	}

	names := make([]string, len(schema.Columns))
	types := make([]string, len(schema.Columns))
	kinds := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		names[i] = c.Name
		types[i] = c.SQLType
		kinds[i] = c.Kind
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		renderColumns([]column{
			{header: "column", style: headerStyle, cells: names},
			{header: "type", style: headerStyle, cells: types},
			{header: "kind", style: headerStyle, cells: kinds},
		}),
	)
}
