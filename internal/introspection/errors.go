package introspection

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrUnknownTable reports that a table or view has no discoverable columns.
var ErrUnknownTable = errors.New("unknown table")

const (
	// mysqlErrNoSuchTable is ER_NO_SUCH_TABLE.
	mysqlErrNoSuchTable = 1146
	// mysqlErrViewInvalid is ER_VIEW_INVALID.
	mysqlErrViewInvalid = 1356
)

// BrokenDependencyError reports a view whose definition references objects that
// no longer exist (or are no longer accessible), so its columns cannot be read.
type BrokenDependencyError struct {
	Table string
	Err   error
}

func (e *BrokenDependencyError) Error() string {
	return fmt.Sprintf("table %s references a missing dependency: %v", e.Table, e.Err)
}

func (e *BrokenDependencyError) Unwrap() error {
	return e.Err
}

func isNoSuchTable(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrNoSuchTable
}

// IsViewInvalid reports whether err is the engine rejecting a view whose
// definition references dropped or inaccessible objects. TiDB keeps such a
// view's columns in the catalog, so this can surface from the data query.
func IsViewInvalid(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrViewInvalid
}
