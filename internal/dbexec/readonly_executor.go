package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReadOnlyExecutor runs each query inside a read-only transaction on a
// dedicated connection, optionally capping server-side execution time.
type ReadOnlyExecutor struct {
	db               *sql.DB
	maxExecutionTime time.Duration
}

// ReadOnlyExecutorConfig controls read-only execution behavior.
type ReadOnlyExecutorConfig struct {
	DB *sql.DB
	// MaxExecutionTime sets the session max_execution_time for the query.
	// Zero leaves the server default in place.
	MaxExecutionTime time.Duration
}

// NewReadOnlyExecutor creates an executor that never runs writes.
func NewReadOnlyExecutor(cfg ReadOnlyExecutorConfig) *ReadOnlyExecutor {
	return &ReadOnlyExecutor{
		db:               cfg.DB,
		maxExecutionTime: cfg.MaxExecutionTime,
	}
}

func (e *ReadOnlyExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	limited := false
	release := func() {
		if limited {
			_, _ = conn.ExecContext(context.Background(), "SET SESSION max_execution_time = DEFAULT")
		}
		_ = conn.Close()
	}

	if ms := e.maxExecutionTime.Milliseconds(); ms > 0 {
		// SET does not take placeholders for session variables on every server.
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET SESSION max_execution_time = %d", ms)); err != nil {
			release()
			return nil, fmt.Errorf("failed to set max_execution_time: %w", err)
		}
		limited = true
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		release()
		return nil, err
	}

	return &readOnlyRows{
		Rows: rows,
		cleanup: func() {
			_ = tx.Rollback()
			release()
		},
	}, nil
}

type readOnlyRows struct {
	*sql.Rows
	cleanup func()
}

func (r *readOnlyRows) Close() error {
	defer r.cleanup()
	return r.Rows.Close()
}
