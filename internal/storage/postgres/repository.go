package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lgn-platform/lgn-api/internal/domain/groups"
	"github.com/lgn-platform/lgn-api/internal/domain/marathons"
	"github.com/lgn-platform/lgn-api/internal/domain/organizations"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/storage"
)

// Repository implements storage.Repository interface with PostgreSQL backend
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	organizations *OrganizationRepository
	groups        *GroupRepository
	marathons     *MarathonRepository
	users         *UserRepository
	tokens        *TokenRepository
}

// NewRepository creates a new PostgreSQL-backed repository
func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return newRepository(pool, nil), nil
}

func newRepository(pool *pgxpool.Pool, tx pgx.Tx) *Repository {
	c := conn{pool: pool, tx: tx}
	return &Repository{
		pool:          pool,
		tx:            tx,
		organizations: &OrganizationRepository{conn: c},
		groups:        &GroupRepository{conn: c},
		marathons:     &MarathonRepository{conn: c},
		users:         &UserRepository{conn: c},
		tokens:        &TokenRepository{conn: c},
	}
}

func (r *Repository) Organizations() organizations.Repository {
	return r.organizations
}

func (r *Repository) Groups() groups.Repository {
	return r.groups
}

func (r *Repository) Marathons() marathons.Repository {
	return r.marathons
}

func (r *Repository) Users() users.UserRepository {
	return r.users
}

func (r *Repository) Tokens() users.TokenRepository {
	return r.tokens
}

func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx executes a function within a database transaction. Nested calls
// reuse the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, newRepository(r.pool, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return rollbackFailed(err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rollbackFailed keeps both the cause and the rollback failure matchable
// with errors.Is.
func rollbackFailed(err, rbErr error) error {
	return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
}

// UsersTx adapts WithTx to the users service so registration writes the
// user and its first token in one transaction.
func (r *Repository) UsersTx() users.TxFunc {
	return func(ctx context.Context, fn func(context.Context, users.UserRepository, users.TokenRepository) error) error {
		return r.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
			return fn(ctx, tx.Users(), tx.Tokens())
		})
	}
}
