// Package dbexec runs chart data queries. Catalog reads go straight to the
// pool; data queries go through a QueryExecutor so deployments can confine
// them to read-only transactions.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is the result cursor a chart query hands to the row scanner. Column
// types are needed to convert driver values into chart values.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
	Err() error
	Close() error
}

// QueryExecutor runs one chart data query. Implementations never write.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

var (
	_ QueryExecutor = (*PoolExecutor)(nil)
	_ QueryExecutor = (*ReadOnlyExecutor)(nil)
)

// PoolExecutor sends chart queries to any pooled connection. It is the
// default when charts.read_only is off.
type PoolExecutor struct {
	db *sql.DB
}

func NewPoolExecutor(db *sql.DB) *PoolExecutor {
	return &PoolExecutor{db: db}
}

// QueryContext fails with sql.ErrConnDone when no pool is attached.
func (e *PoolExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}
