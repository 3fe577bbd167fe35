// Package store is the Postgres persistence layer. Repositories share a
// pgxpool and run statements against a transaction carried in the context
// when one is open, so a service can compose repository calls into a single
// transaction without threading pgx.Tx through every signature.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNumberTaken = errors.New("order number already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameTaken    = errors.New("username is already taken")
	ErrEmailTaken       = errors.New("email is already registered")
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type txKey struct{}

// WithTx runs fn inside a transaction. If the context already carries one,
// fn joins it. If it carries an outer transaction and nested is true, fn runs
// in a nested transaction (a Postgres SAVEPOINT) so its failure rolls back
// only fn's own writes while the outer transaction continues.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// WithNestedTx runs fn in a nested transaction over the transaction already
// in ctx. pgx maps nested Begin to SAVEPOINT / RELEASE SAVEPOINT, so a
// rollback here undoes only fn's writes. Without an open transaction it
// falls back to WithTx.
func (s *Store) WithNestedTx(ctx context.Context, fn func(ctx context.Context) error) error {
	outer := txFromContext(ctx)
	if outer == nil {
		return s.WithTx(ctx, fn)
	}
	nested, err := outer.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, nested)
	if err := fn(txCtx); err != nil {
		_ = nested.Rollback(ctx)
		return err
	}
	return nested.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
