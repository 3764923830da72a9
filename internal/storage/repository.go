package storage

import (
	"context"

	"github.com/lgn-platform/lgn-api/internal/domain/groups"
	"github.com/lgn-platform/lgn-api/internal/domain/marathons"
	"github.com/lgn-platform/lgn-api/internal/domain/organizations"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Organizations() organizations.Repository
	Groups() groups.Repository
	Marathons() marathons.Repository
	Users() users.UserRepository
	Tokens() users.TokenRepository

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Ping(ctx context.Context) error
}
