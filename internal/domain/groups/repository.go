package groups

import (
	"context"
	"errors"
	"time"

	"github.com/lgn-platform/lgn-api/internal/domain/marathons"
)

var (
	ErrNotFound             = errors.New("group not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrMarathonNotFound     = errors.New("marathon not found")
)

type Group struct {
	ID               int64
	Name             string
	OrganizationID   int64
	OrganizationName string
	Members          []Member
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Member struct {
	ID        int64
	Name      string
	Age       int
	Email     string
	GroupID   int64
	GroupName string
	Marathons []marathons.Marathon
}

type MemberParams struct {
	Name        string
	Age         int
	Email       string
	MarathonIDs []int64
}

// Params describes the full desired state of a group. On update the member
// set is replaced, not merged.
type Params struct {
	Name           string
	OrganizationID int64
	Members        []MemberParams
}

type Repository interface {
	List(ctx context.Context) ([]Group, error)
	ListByOrganization(ctx context.Context, organizationIDs ...int64) ([]Group, error)
	GetByID(ctx context.Context, id int64) (*Group, error)
	Create(ctx context.Context, params Params) (*Group, error)
	Update(ctx context.Context, id int64, params Params) (*Group, error)
	Delete(ctx context.Context, id int64) error
}
