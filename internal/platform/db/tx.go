package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// serializationFailure is the SQLSTATE returned when a RepeatableRead
// transaction loses a write conflict.
const serializationFailure = "40001"

const maxTxAttempts = 3

// TxBeginner starts transactions. *pgxpool.Pool and pgx.Tx satisfy it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type txKey struct{}

// TxFromContext returns the transaction opened by an enclosing WithTx.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// Conn returns the enclosing transaction when it satisfies T, else fallback.
// Repositories use it so reads made inside another package's WithTx see
// that transaction's uncommitted writes.
func Conn[T any](ctx context.Context, fallback T) T {
	if tx, ok := TxFromContext(ctx); ok {
		if c, ok := any(tx).(T); ok {
			return c
		}
	}
	return fallback
}

// WithTx runs fn inside a RepeatableRead transaction. The whole transaction is
// retried when the commit, or fn itself, fails with a serialization conflict,
// so fn must not have side effects outside tx.
//
// When ctx already carries a transaction, fn joins it: the outermost WithTx
// owns commit, rollback and retries.
func WithTx(ctx context.Context, db TxBeginner, fn func(context.Context, pgx.Tx) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = runTx(ctx, db, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("platform/db: gave up after %d attempts: %w", maxTxAttempts, err)
}

func runTx(ctx context.Context, db TxBeginner, fn func(context.Context, pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx), tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}
