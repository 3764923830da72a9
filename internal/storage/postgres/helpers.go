package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	sqlStateForeignKeyViolation = "23503"
	sqlStateUniqueViolation     = "23505"
)

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// conn is embedded by every repository: it routes statements to the
// transaction when one is bound and to the pool otherwise.
type conn struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (c conn) queryer() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.pool
}

// inTx runs fn in a transaction, or in a savepoint when the repository is
// already bound to one.
func (c conn) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var db beginner = c.pool
	if c.tx != nil {
		db = c.tx
	}
	return pgx.BeginFunc(ctx, db, fn)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}

func isForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateForeignKeyViolation &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}
