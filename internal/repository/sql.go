package repository

import (
	"context"
	"database/sql"
	"time"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlDate renders a calendar date for a DATE column.  Passing a string
// keeps the driver from shifting the value across time zones.
func sqlDate(t time.Time) string { return t.Format("2006-01-02") }

// rollback is deferred by every write transaction; it is a no-op once the
// transaction has been committed.
func rollback(tx *sql.Tx, committed *bool) {
	if !*committed {
		_ = tx.Rollback()
	}
}
