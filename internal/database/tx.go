package database

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a transaction in ctx so store methods called inside RunInTx join it.
func WithTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFrom extracts a transaction from ctx if present.
func TxFrom(ctx context.Context) (bun.Tx, bool) {
	tx, ok := ctx.Value(txKey).(bun.Tx)
	return tx, ok
}

// Conn returns the transaction carried by ctx, or db itself.
func Conn(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

// RunInTx runs fn in a transaction, committing on nil and rolling back otherwise.
// A ctx that already carries a transaction is reused as-is.
func RunInTx(ctx context.Context, db *bun.DB, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(WithTx(ctx, tx))
	})
}
