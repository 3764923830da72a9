package groups

import (
	"context"
	"slices"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Group, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByOrganization(ctx context.Context, organizationIDs ...int64) ([]Group, error) {
	if len(organizationIDs) == 0 {
		return []Group{}, nil
	}
	return s.repo.ListByOrganization(ctx, organizationIDs...)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Group, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, params Params) (*Group, error) {
	return s.repo.Create(ctx, normalize(params))
}

// Update renames or moves the group and replaces its members with
// params.Members.
func (s *Service) Update(ctx context.Context, id int64, params Params) (*Group, error) {
	return s.repo.Update(ctx, id, normalize(params))
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func normalize(params Params) Params {
	params.Name = strings.TrimSpace(params.Name)
	members := make([]MemberParams, len(params.Members))
	for i, m := range params.Members {
		m.Name = strings.TrimSpace(m.Name)
		m.Email = strings.ToLower(strings.TrimSpace(m.Email))
		m.MarathonIDs = uniqueIDs(m.MarathonIDs)
		members[i] = m
	}
	params.Members = members
	return params
}

func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
