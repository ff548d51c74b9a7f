package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// withTx runs fn inside a transaction on db. When db is already a pgx.Tx the
// work runs in a savepoint.
func withTx(ctx context.Context, db dbtx, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}
