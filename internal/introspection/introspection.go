// Package introspection reads live column metadata for a single table or view
// from the MySQL/TiDB catalog. Results are never cached: views are edited by
// end users at runtime, so every chart request sees the current definition.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tidb-charts/internal/sqltype"
	"tidb-charts/internal/sqlutil"
)

// Column represents a live database column.
type Column struct {
	Name       string
	DataType   string // base type, e.g. "decimal"
	ColumnType string // full type, e.g. "decimal(10,2)"
	Kind       sqltype.Kind
	IsNullable bool
	// IsPrimaryKey is only reliable for base tables.
	IsPrimaryKey bool
}

// TableSchema is the ordered column list of a table or view.
type TableSchema struct {
	Name    string
	IsView  bool
	Columns []Column
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// InspectTable returns the ordered live columns of tableName.
//
// INFORMATION_SCHEMA.COLUMNS is the primary source. When it errors or yields no
// rows, SHOW COLUMNS is tried once: MySQL hides the columns of views whose
// definitions reference dropped objects from the catalog, and only the direct
// SHOW statement surfaces the underlying error. A missing table reports
// ErrUnknownTable; any other secondary failure becomes a BrokenDependencyError.
func InspectTable(ctx context.Context, db Queryer, databaseName, tableName string) (*TableSchema, error) {
	ctx, span := startSpan(ctx, "introspection.inspect_table",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	if strings.TrimSpace(tableName) == "" {
		return nil, unknownTable(tableName)
	}

	schema, err := readCatalogColumns(ctx, db, databaseName, tableName)
	if err == nil && len(schema.Columns) > 0 {
		span.SetAttributes(attribute.Int("db.column_count", len(schema.Columns)))
		return schema, nil
	}
	if err != nil {
		slog.Default().Debug("catalog column lookup failed, falling back to SHOW COLUMNS",
			slog.String("table", tableName),
			slog.String("error", err.Error()),
		)
	}

	columns, fallbackErr := readShowColumns(ctx, db, databaseName, tableName)
	if fallbackErr != nil {
		if isNoSuchTable(fallbackErr) {
			return nil, unknownTable(tableName)
		}
		brokenErr := &BrokenDependencyError{Table: tableName, Err: fallbackErr}
		recordSpanError(span, brokenErr)
		return nil, brokenErr
	}
	if len(columns) == 0 {
		return nil, unknownTable(tableName)
	}

	span.SetAttributes(attribute.Int("db.column_count", len(columns)))
	return &TableSchema{Name: tableName, Columns: columns}, nil
}

func readCatalogColumns(ctx context.Context, db Queryer, databaseName, tableName string) (*TableSchema, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.COLUMN_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_KEY,
			t.TABLE_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN INFORMATION_SCHEMA.TABLES t
			ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = ? AND c.TABLE_NAME = ?
		ORDER BY c.ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	schema := &TableSchema{Name: tableName}
	for rows.Next() {
		var col Column
		var isNullable string
		var columnKey sql.NullString
		var tableType string
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType, &isNullable, &columnKey, &tableType); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.DataType = strings.ToLower(col.DataType)
		col.Kind = sqltype.Classify(col.DataType)
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		col.IsPrimaryKey = columnKey.Valid && strings.EqualFold(columnKey.String, "PRI")
		schema.IsView = strings.EqualFold(tableType, "VIEW")
		schema.Columns = append(schema.Columns, col)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return schema, nil
}

func readShowColumns(ctx context.Context, db Queryer, databaseName, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.show_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := "SHOW COLUMNS FROM " + sqlutil.QuoteIdentifier(tableName)
	if databaseName != "" {
		query += " FROM " + sqlutil.QuoteIdentifier(databaseName)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var field, columnType, null string
		var key, defaultValue, extra sql.NullString
		if err := rows.Scan(&field, &columnType, &null, &key, &defaultValue, &extra); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		columns = append(columns, Column{
			Name:         field,
			DataType:     sqltype.BaseType(columnType),
			ColumnType:   columnType,
			Kind:         sqltype.Classify(columnType),
			IsNullable:   strings.EqualFold(null, "YES"),
			IsPrimaryKey: key.Valid && strings.EqualFold(key.String, "PRI"),
		})
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func unknownTable(tableName string) error {
	return fmt.Errorf("%w: %s", ErrUnknownTable, tableName)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("tidb-charts/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
