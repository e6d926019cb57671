package storage

import (
	"context"

	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/services/booking-service/internal/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the booking service's Postgres access. Read paths run on the
// pool; write paths that must be atomic go through InTx.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool, outbox: outbox.NewRepository()}
}

// Tx exposes the repositories bound to one transaction.
type Tx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&Tx{tx: tx, outbox: s.outbox})
	})
}

func (t *Tx) Enqueue(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
