package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lgn-platform/lgn-api/internal/domain/organizations"
)

type OrganizationRepository struct {
	conn
}

const organizationColumns = `id, name, street, number, neighborhood, city, state, country, zip_code,
       institution_name, headquarters_country, created_at, updated_at`

func scanOrganization(row pgx.Row) (*organizations.Organization, error) {
	var o organizations.Organization
	a := &o.Address
	if err := row.Scan(
		&o.ID,
		&o.Name,
		&a.Street,
		&a.Number,
		&a.Neighborhood,
		&a.City,
		&a.State,
		&a.Country,
		&a.ZipCode,
		&o.InstitutionName,
		&o.HeadquartersCountry,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrganizationRepository) List(ctx context.Context) ([]organizations.Organization, error) {
	rows, err := r.queryer().Query(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	items := []organizations.Organization{}
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		items = append(items, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return items, nil
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id int64) (*organizations.Organization, error) {
	o, err := scanOrganization(r.queryer().QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, organizations.ErrNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return o, nil
}

func (r *OrganizationRepository) Create(ctx context.Context, params organizations.Params) (*organizations.Organization, error) {
	a := params.Address
	o, err := scanOrganization(r.queryer().QueryRow(ctx, `
INSERT INTO organizations (name, street, number, neighborhood, city, state, country, zip_code,
                           institution_name, headquarters_country)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+organizationColumns,
		params.Name, a.Street, a.Number, a.Neighborhood, a.City, a.State, a.Country, a.ZipCode,
		params.InstitutionName, params.HeadquartersCountry,
	))
	if err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	return o, nil
}

func (r *OrganizationRepository) Update(ctx context.Context, id int64, params organizations.Params) (*organizations.Organization, error) {
	a := params.Address
	o, err := scanOrganization(r.queryer().QueryRow(ctx, `
UPDATE organizations
   SET name = $2, street = $3, number = $4, neighborhood = $5, city = $6, state = $7,
       country = $8, zip_code = $9, institution_name = $10, headquarters_country = $11,
       updated_at = now()
 WHERE id = $1
RETURNING `+organizationColumns,
		id, params.Name, a.Street, a.Number, a.Neighborhood, a.City, a.State, a.Country, a.ZipCode,
		params.InstitutionName, params.HeadquartersCountry,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, organizations.ErrNotFound
		}
		return nil, fmt.Errorf("update organization: %w", err)
	}
	return o, nil
}

// Delete removes the organization; groups, members and their marathon links
// go with it through ON DELETE CASCADE.
func (r *OrganizationRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return organizations.ErrNotFound
	}
	return nil
}
