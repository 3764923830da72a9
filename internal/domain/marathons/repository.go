package marathons

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("marathon not found")

type Marathon struct {
	ID             int64
	Identification string
	Weight         float64
	Score          float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Params struct {
	Identification string
	Weight         float64
	Score          float64
}

type Repository interface {
	List(ctx context.Context) ([]Marathon, error)
	GetByID(ctx context.Context, id int64) (*Marathon, error)
	Create(ctx context.Context, params Params) (*Marathon, error)
	Update(ctx context.Context, id int64, params Params) (*Marathon, error)
	Delete(ctx context.Context, id int64) error
}
