package users

import (
	"context"
	"errors"
	"time"

	"github.com/lgn-platform/lgn-api/internal/auth"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrTokenNotFound      = errors.New("token not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or revoked token")
	ErrWrongPassword      = errors.New("wrong password")
	ErrPasswordMismatch   = errors.New("passwords are not the same")
)

const TokenTypeBearer = "BEARER"

type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         auth.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token is a persisted access token. A token authenticates requests only
// while it is neither revoked nor expired.
type Token struct {
	ID        int64
	Value     string
	Type      string
	Revoked   bool
	Expired   bool
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t Token) Active(now time.Time) bool {
	return !t.Revoked && !t.Expired && now.Before(t.ExpiresAt)
}

type UserRepository interface {
	Create(ctx context.Context, user User) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

type TokenRepository interface {
	Save(ctx context.Context, token Token) (*Token, error)
	FindByValue(ctx context.Context, value string) (*Token, error)
	// Revoke marks a single token expired and revoked.
	Revoke(ctx context.Context, value string) error
	// Rotate revokes every active token of the user and stores token in the
	// same transaction. It returns the values of the tokens it revoked.
	Rotate(ctx context.Context, userID int64, token Token) ([]string, error)
	// PurgeInactive deletes revoked or expired tokens created before cutoff.
	PurgeInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxFunc runs fn with user and token repositories bound to a single
// transaction. An error returned by fn rolls the transaction back.
type TxFunc func(ctx context.Context, fn func(ctx context.Context, users UserRepository, tokens TokenRepository) error) error

// Notifier delivers account emails. Failures never fail the calling
// operation.
type Notifier interface {
	SendWelcome(ctx context.Context, to, firstName string) error
	SendPasswordChanged(ctx context.Context, to, firstName string) error
}
