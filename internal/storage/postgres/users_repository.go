package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/metrics"
)

const usersEmailKey = "users_email_key"

type UserRepository struct {
	conn
}

const userColumns = `id, first_name, last_name, email, password_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	var role string
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.NormalizeRole(role)
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user users.User) (_ *users.User, err error) {
	defer func(start time.Time) { metrics.RecordQuery("users.create", start, err) }(time.Now())

	created, err := scanUser(r.queryer().QueryRow(ctx, `
INSERT INTO users (first_name, last_name, email, password_hash, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+userColumns,
		user.FirstName, user.LastName, user.Email, user.PasswordHash, string(user.Role),
	))
	if err != nil {
		if isUniqueViolation(err, usersEmailKey) {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (_ *users.User, err error) {
	defer func(start time.Time) { metrics.RecordQuery("users.get_by_email", start, err) }(time.Now())

	u, err := scanUser(r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*users.User, error) {
	u, err := scanUser(r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.queryer().Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}
