package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lgn-platform/lgn-api/internal/domain/marathons"
)

type MarathonRepository struct {
	conn
}

const marathonColumns = `id, identification, weight, score, created_at, updated_at`

func scanMarathon(row pgx.Row) (*marathons.Marathon, error) {
	var m marathons.Marathon
	if err := row.Scan(&m.ID, &m.Identification, &m.Weight, &m.Score, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MarathonRepository) List(ctx context.Context) ([]marathons.Marathon, error) {
	rows, err := r.queryer().Query(ctx, `SELECT `+marathonColumns+` FROM marathons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list marathons: %w", err)
	}
	defer rows.Close()

	items := []marathons.Marathon{}
	for rows.Next() {
		m, err := scanMarathon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan marathon: %w", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marathons: %w", err)
	}
	return items, nil
}

func (r *MarathonRepository) GetByID(ctx context.Context, id int64) (*marathons.Marathon, error) {
	m, err := scanMarathon(r.queryer().QueryRow(ctx, `SELECT `+marathonColumns+` FROM marathons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, marathons.ErrNotFound
		}
		return nil, fmt.Errorf("get marathon: %w", err)
	}
	return m, nil
}

func (r *MarathonRepository) Create(ctx context.Context, params marathons.Params) (*marathons.Marathon, error) {
	m, err := scanMarathon(r.queryer().QueryRow(ctx, `
INSERT INTO marathons (identification, weight, score)
VALUES ($1, $2, $3)
RETURNING `+marathonColumns,
		params.Identification, params.Weight, params.Score,
	))
	if err != nil {
		return nil, fmt.Errorf("create marathon: %w", err)
	}
	return m, nil
}

func (r *MarathonRepository) Update(ctx context.Context, id int64, params marathons.Params) (*marathons.Marathon, error) {
	m, err := scanMarathon(r.queryer().QueryRow(ctx, `
UPDATE marathons
   SET identification = $2, weight = $3, score = $4, updated_at = now()
 WHERE id = $1
RETURNING `+marathonColumns,
		id, params.Identification, params.Weight, params.Score,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, marathons.ErrNotFound
		}
		return nil, fmt.Errorf("update marathon: %w", err)
	}
	return m, nil
}

func (r *MarathonRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM marathons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete marathon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return marathons.ErrNotFound
	}
	return nil
}
