package planner

import (
	"fmt"

	"tidb-charts/internal/introspection"
	"tidb-charts/internal/sqltype"
	"tidb-charts/internal/sqlutil"
)

// BucketDateFormat renders a bucket column as an ISO calendar day.
const BucketDateFormat = "%Y-%m-%d"

// numericTextPattern matches decimal or scientific notation. It avoids
// backslashes and question marks so it survives string literal unescaping
// and client-side placeholder interpolation.
const numericTextPattern = "^[+-]{0,1}([0-9]+[.]{0,1}[0-9]*|[.][0-9]+)([eE][+-]{0,1}[0-9]+){0,1}$"

// ExpressionMapper maps validated column names to SQL read expressions.
// Callers must only pass names that ValidateFields accepted.
type ExpressionMapper struct {
	table   introspection.TableSchema
	profile TableProfile
}

// NewExpressionMapper builds a mapper for one table and its profile.
func NewExpressionMapper(table introspection.TableSchema, profile TableProfile) ExpressionMapper {
	return ExpressionMapper{table: table, profile: profile}
}

// IsBucketColumn reports whether column is the table's bucket column.
// The decision is by name only.
func (m ExpressionMapper) IsBucketColumn(column string) bool {
	return m.profile.BucketColumn != "" && column == m.profile.BucketColumn
}

// Column returns the quoted identifier for a column.
func (m ExpressionMapper) Column(column string) string {
	return sqlutil.QuoteIdentifier(column)
}

// ReadExpression returns how a column is read into a chart projection.
func (m ExpressionMapper) ReadExpression(column string) string {
	quoted := sqlutil.QuoteIdentifier(column)
	if m.IsBucketColumn(column) {
		return fmt.Sprintf("DATE_FORMAT(%s, '%s')", quoted, BucketDateFormat)
	}
	return quoted
}

// NumericExpression returns a best-effort numeric read of column for use
// inside aggregates. Values that are not numeric text read as NULL, so they
// are skipped by the aggregate instead of failing the statement.
func (m ExpressionMapper) NumericExpression(column string) string {
	quoted := sqlutil.QuoteIdentifier(column)
	if col, ok := introspection.FindColumn(m.table, column); ok && col.Kind.IsNumeric() {
		return quoted
	}
	return fmt.Sprintf(
		"CASE WHEN TRIM(%s) REGEXP '%s' THEN CAST(TRIM(%s) AS DECIMAL(65,10)) END",
		quoted, numericTextPattern, quoted,
	)
}

// AggregateExpression applies agg to a value axis. COUNT reads the raw
// column so it counts rows, not castable values. Numeric columns are never
// NULL inside a bucket because of the IS NOT NULL filter; cast reads can be,
// so a bucket with no castable value reports 0.
func (m ExpressionMapper) AggregateExpression(agg Aggregation, column string) string {
	if agg == AggregationCount {
		return fmt.Sprintf("COUNT(%s)", sqlutil.QuoteIdentifier(column))
	}
	if col, ok := introspection.FindColumn(m.table, column); ok && col.Kind.IsNumeric() {
		return fmt.Sprintf("%s(%s)", agg.sqlFunc(), sqlutil.QuoteIdentifier(column))
	}
	return fmt.Sprintf("COALESCE(%s(%s), 0)", agg.sqlFunc(), m.NumericExpression(column))
}

func (m ExpressionMapper) isTemporal(column string) bool {
	col, ok := introspection.FindColumn(m.table, column)
	return ok && col.Kind == sqltype.KindTemporal
}
