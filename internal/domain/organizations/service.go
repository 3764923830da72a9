package organizations

import (
	"context"
	"fmt"
	"strings"

	"github.com/lgn-platform/lgn-api/internal/domain/groups"
)

type Service struct {
	repo   Repository
	groups GroupLister
}

func NewService(repo Repository, groups GroupLister) *Service {
	return &Service{repo: repo, groups: groups}
}

func (s *Service) List(ctx context.Context) ([]Organization, error) {
	orgs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.attachGroups(ctx, orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Organization, error) {
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withGroups(ctx, org)
}

func (s *Service) Create(ctx context.Context, params Params) (*Organization, error) {
	org, err := s.repo.Create(ctx, normalize(params))
	if err != nil {
		return nil, err
	}
	org.Groups = []groups.Group{}
	return org, nil
}

func (s *Service) Update(ctx context.Context, id int64, params Params) (*Organization, error) {
	org, err := s.repo.Update(ctx, id, normalize(params))
	if err != nil {
		return nil, err
	}
	return s.withGroups(ctx, org)
}

// Delete removes the organization together with its groups and members.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) withGroups(ctx context.Context, org *Organization) (*Organization, error) {
	orgs := []Organization{*org}
	if err := s.attachGroups(ctx, orgs); err != nil {
		return nil, err
	}
	return &orgs[0], nil
}

func (s *Service) attachGroups(ctx context.Context, orgs []Organization) error {
	if len(orgs) == 0 || s.groups == nil {
		for i := range orgs {
			orgs[i].Groups = []groups.Group{}
		}
		return nil
	}

	ids := make([]int64, len(orgs))
	for i, org := range orgs {
		ids[i] = org.ID
	}
	list, err := s.groups.ListByOrganization(ctx, ids...)
	if err != nil {
		return fmt.Errorf("load organization groups: %w", err)
	}

	byOrg := make(map[int64][]groups.Group, len(orgs))
	for _, g := range list {
		byOrg[g.OrganizationID] = append(byOrg[g.OrganizationID], g)
	}
	for i := range orgs {
		if found := byOrg[orgs[i].ID]; found != nil {
			orgs[i].Groups = found
		} else {
			orgs[i].Groups = []groups.Group{}
		}
	}
	return nil
}

func normalize(params Params) Params {
	params.Name = strings.TrimSpace(params.Name)
	params.InstitutionName = strings.TrimSpace(params.InstitutionName)
	params.HeadquartersCountry = strings.TrimSpace(params.HeadquartersCountry)
	a := &params.Address
	for _, field := range []*string{&a.Street, &a.Number, &a.Neighborhood, &a.City, &a.State, &a.Country, &a.ZipCode} {
		*field = strings.TrimSpace(*field)
	}
	return params
}
