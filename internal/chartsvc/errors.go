package chartsvc

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"

	"tidb-charts/internal/introspection"
	"tidb-charts/internal/planner"
)

// QueryExecutionError reports a failure while running or reading a chart
// query. The message of the underlying error is passed through unchanged.
type QueryExecutionError struct {
	Err       error
	Transient bool
}

func (e *QueryExecutionError) Error() string {
	return e.Err.Error()
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a connection-level failure worth retrying.
// Context cancellation and deadlines never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Error kinds used for metrics and logs.
const (
	KindInvalidRequest   = "invalid_request"
	KindUnknownField     = "unknown_field"
	KindUnknownTable     = "unknown_table"
	KindBrokenDependency = "broken_dependency"
	KindQueryExecution   = "query_execution"
	KindInternal         = "internal"
)

// ErrorKind classifies a pipeline error.
func ErrorKind(err error) string {
	var invalid *planner.InvalidRequestError
	var unknownField *planner.UnknownFieldError
	var broken *introspection.BrokenDependencyError
	var execErr *QueryExecutionError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid):
		return KindInvalidRequest
	case errors.As(err, &unknownField):
		return KindUnknownField
	case errors.Is(err, introspection.ErrUnknownTable):
		return KindUnknownTable
	case errors.As(err, &broken):
		return KindBrokenDependency
	case errors.As(err, &execErr):
		return KindQueryExecution
	default:
		return KindInternal
	}
}

// IsRequestError reports whether err was caused by the request rather than
// the database. Request errors are never retried.
func IsRequestError(err error) bool {
	switch ErrorKind(err) {
	case KindInvalidRequest, KindUnknownField, KindUnknownTable, KindBrokenDependency:
		return true
	default:
		return false
	}
}
