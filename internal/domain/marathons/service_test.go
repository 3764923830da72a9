package marathons

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	nextID int64
	items  map[int64]Marathon
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]Marathon{}}
}

func (r *memoryRepo) List(_ context.Context) ([]Marathon, error) {
	out := make([]Marathon, 0, len(r.items))
	for i := int64(1); i <= r.nextID; i++ {
		if m, ok := r.items[i]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id int64) (*Marathon, error) {
	m, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r *memoryRepo) Create(_ context.Context, params Params) (*Marathon, error) {
	r.nextID++
	m := Marathon{ID: r.nextID, Identification: params.Identification, Weight: params.Weight, Score: params.Score}
	r.items[m.ID] = m
	return &m, nil
}

func (r *memoryRepo) Update(_ context.Context, id int64, params Params) (*Marathon, error) {
	if _, ok := r.items[id]; !ok {
		return nil, ErrNotFound
	}
	m := Marathon{ID: id, Identification: params.Identification, Weight: params.Weight, Score: params.Score}
	r.items[id] = m
	return &m, nil
}

func (r *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func TestServiceCreateThenRead(t *testing.T) {
	ctx := context.Background()
	service := NewService(newMemoryRepo())

	created, err := service.Create(ctx, Params{Identification: "  OBI 2024 ", Weight: 1.5, Score: 87})
	require.NoError(t, err)
	require.Equal(t, "OBI 2024", created.Identification)

	got, err := service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)

	list, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestServiceDeleteThenRead(t *testing.T) {
	ctx := context.Background()
	service := NewService(newMemoryRepo())

	created, err := service.Create(ctx, Params{Identification: "Maratona", Weight: 2, Score: 10})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, created.ID))
	_, err = service.GetByID(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, service.Delete(ctx, created.ID), ErrNotFound)
}

func TestServiceUpdateMissing(t *testing.T) {
	service := NewService(newMemoryRepo())
	_, err := service.Update(context.Background(), 42, Params{Identification: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}
