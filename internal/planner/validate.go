package planner

import (
	"tidb-charts/internal/introspection"
)

// ValidateFields checks the category axis, then each value axis in request
// order, against the live columns. It fails on the first unknown name.
func ValidateFields(req ChartRequest, table introspection.TableSchema) error {
	allowed := introspection.ColumnNames(table)

	if _, ok := introspection.FindColumn(table, req.CategoryAxis); !ok {
		return &UnknownFieldError{Param: "xAxis", Field: req.CategoryAxis, Allowed: allowed}
	}
	for _, axis := range req.ValueAxes {
		if _, ok := introspection.FindColumn(table, axis); !ok {
			return &UnknownFieldError{Param: "yAxis", Field: axis, Allowed: allowed}
		}
	}
	return nil
}
