package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Transactor hands out pgx transactions from the pool. Services begin one
// per operation and pass it down to the repositories, so a ledger write and
// its wallet-row lock always share a transaction.
type Transactor struct {
	pool Pool
}

// NewTransactor wraps the pool as a ports.DBTransactor.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin opens a transaction with the pool's default isolation level.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.Begin(ctx)
}
