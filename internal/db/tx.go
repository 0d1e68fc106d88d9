package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so store methods can
// accept either and be reused inside InTransaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// InTransaction runs fn inside a transaction on d, committing if fn returns
// nil and rolling back otherwise. If ctx already carries a transaction
// (from an outer InTransaction call), fn reuses it instead of nesting a new
// one — SQLite has no real nested-transaction support, so this flattens to
// a single commit/rollback at the outermost call.
func (d *DB) InTransaction(ctx context.Context, fn func(ctx context.Context, q Querier) error) (err error) {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx, tx)
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(context.WithValue(ctx, txKey{}, tx), tx)
	return err
}

// Q returns a Querier over d suitable for read paths that don't need a
// transaction but want the same call shape as code running inside one.
func (d *DB) Q() Querier { return d.conn }

var errNoRows = sql.ErrNoRows

// IsNotFound reports whether err is the no-rows sentinel.
func IsNotFound(err error) bool { return errors.Is(err, errNoRows) }
