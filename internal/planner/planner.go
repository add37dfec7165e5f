// Package planner turns chart requests into parameterized SQL statements.
// It validates axis names against the live column set, maps columns to read
// expressions, compiles range filters and selects between raw projection and
// day-bucketed aggregation.
package planner

import (
	"tidb-charts/internal/introspection"
	"tidb-charts/internal/sqltype"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// PlannedQuery is a validated chart request ready for execution.
type PlannedQuery struct {
	Query SQLQuery
	Plan  Plan
	// ValueCount is the number of y_value_* projections, one per requested value axis.
	ValueCount int
	// Kinds holds the value kind of each projection: x_value first, then
	// y_value_0..N-1.
	Kinds []sqltype.Kind
}

// PlanChartQuery validates req against the live table and builds its SQL.
// Nothing is executed; any returned error is a request error.
func PlanChartQuery(req ChartRequest, table introspection.TableSchema, profile TableProfile, limits Limits) (PlannedQuery, error) {
	if err := req.Check(); err != nil {
		return PlannedQuery{}, err
	}
	if err := ValidateFields(req, table); err != nil {
		return PlannedQuery{}, err
	}

	mapper := NewExpressionMapper(table, profile)
	predicates, err := CompileFilters(req, mapper)
	if err != nil {
		return PlannedQuery{}, err
	}

	plan, err := SelectPlan(req, mapper, limits)
	if err != nil {
		return PlannedQuery{}, err
	}

	query, err := BuildQuery(req, table, mapper, plan, predicates)
	if err != nil {
		return PlannedQuery{}, err
	}

	return PlannedQuery{
		Query:      query,
		Plan:       plan,
		ValueCount: len(req.ValueAxes),
		Kinds:      projectionKinds(req, table, mapper, plan),
	}, nil
}

func projectionKinds(req ChartRequest, table introspection.TableSchema, mapper ExpressionMapper, plan Plan) []sqltype.Kind {
	kinds := make([]sqltype.Kind, 0, len(req.ValueAxes)+1)
	kinds = append(kinds, readKind(table, mapper, req.CategoryAxis))
	for _, axis := range req.ValueAxes {
		if _, ok := plan.(BucketedAggregatePlan); ok {
			kinds = append(kinds, sqltype.KindNumeric)
			continue
		}
		kinds = append(kinds, readKind(table, mapper, axis))
	}
	return kinds
}

// readKind is the kind of ReadExpression(column). The bucket expression
// yields formatted text.
func readKind(table introspection.TableSchema, mapper ExpressionMapper, column string) sqltype.Kind {
	if mapper.IsBucketColumn(column) {
		return sqltype.KindText
	}
	col, _ := introspection.FindColumn(table, column)
	return col.Kind
}
