package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tidb-charts/internal/introspection"
	"tidb-charts/internal/sqlutil"
)

const (
	// CategoryAlias is the projected name of the category axis.
	CategoryAlias    = "x_value"
	valueAliasPrefix = "y_value_"
)

// ValueAlias is the projected name of the i-th value axis.
func ValueAlias(i int) string {
	return fmt.Sprintf("%s%d", valueAliasPrefix, i)
}

// BuildQuery assembles the SELECT for plan. Predicates land in WHERE, ahead
// of any GROUP BY.
func BuildQuery(req ChartRequest, table introspection.TableSchema, mapper ExpressionMapper, plan Plan, predicates []sq.Sqlizer) (SQLQuery, error) {
	var builder sq.SelectBuilder

	switch p := plan.(type) {
	case BucketedAggregatePlan:
		columns := make([]string, 0, len(req.ValueAxes)+1)
		columns = append(columns, p.BucketExpr+" AS "+CategoryAlias)
		for i, axis := range req.ValueAxes {
			columns = append(columns, mapper.AggregateExpression(p.Aggregation, axis)+" AS "+ValueAlias(i))
		}
		builder = sq.Select(columns...).
			From(sqlutil.QuoteIdentifier(table.Name)).
			GroupBy(p.BucketExpr).
			OrderBy(CategoryAlias + " ASC")

	case RawPlan:
		columns := make([]string, 0, len(req.ValueAxes)+1)
		columns = append(columns, mapper.ReadExpression(req.CategoryAxis)+" AS "+CategoryAlias)
		for i, axis := range req.ValueAxes {
			columns = append(columns, mapper.ReadExpression(axis)+" AS "+ValueAlias(i))
		}
		builder = sq.Select(columns...).
			From(sqlutil.QuoteIdentifier(table.Name))
		if pk := introspection.PrimaryKeyColumns(table); len(pk) > 0 {
			orderBy := make([]string, len(pk))
			for i, col := range pk {
				orderBy[i] = sqlutil.QuoteIdentifier(col) + " ASC"
			}
			builder = builder.OrderBy(orderBy...)
		}
		builder = builder.Limit(uint64(p.Limit))

	default:
		return SQLQuery{}, fmt.Errorf("unsupported plan type %T", plan)
	}

	if len(predicates) > 0 {
		builder = builder.Where(sq.And(predicates))
	}

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
