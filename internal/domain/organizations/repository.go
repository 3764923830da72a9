package organizations

import (
	"context"
	"errors"
	"time"

	"github.com/lgn-platform/lgn-api/internal/domain/groups"
)

var ErrNotFound = errors.New("organization not found")

type Address struct {
	Street       string
	Number       string
	Neighborhood string
	City         string
	State        string
	Country      string
	ZipCode      string
}

type Organization struct {
	ID                  int64
	Name                string
	Address             Address
	InstitutionName     string
	HeadquartersCountry string
	Groups              []groups.Group
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Params struct {
	Name                string
	Address             Address
	InstitutionName     string
	HeadquartersCountry string
}

type Repository interface {
	List(ctx context.Context) ([]Organization, error)
	GetByID(ctx context.Context, id int64) (*Organization, error)
	Create(ctx context.Context, params Params) (*Organization, error)
	Update(ctx context.Context, id int64, params Params) (*Organization, error)
	Delete(ctx context.Context, id int64) error
}

// GroupLister loads the groups (with members) nested under organizations.
type GroupLister interface {
	ListByOrganization(ctx context.Context, organizationIDs ...int64) ([]groups.Group, error)
}
