package marathons

import (
	"context"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Marathon, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Marathon, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, params Params) (*Marathon, error) {
	return s.repo.Create(ctx, normalize(params))
}

func (s *Service) Update(ctx context.Context, id int64, params Params) (*Marathon, error) {
	return s.repo.Update(ctx, id, normalize(params))
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func normalize(params Params) Params {
	params.Identification = strings.TrimSpace(params.Identification)
	return params
}
