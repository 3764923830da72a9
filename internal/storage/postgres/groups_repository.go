package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lgn-platform/lgn-api/internal/domain/groups"
	"github.com/lgn-platform/lgn-api/internal/domain/marathons"
)

const (
	groupOrganizationFK    = "groups_organization_id_fkey"
	memberMarathonFK       = "member_marathons_marathon_id_fkey"
	selectGroupsWithOrgSQL = `
SELECT g.id, g.name, g.organization_id, o.name, g.created_at, g.updated_at
  FROM groups g
  JOIN organizations o ON o.id = g.organization_id
`
)

type GroupRepository struct {
	conn
}

func (r *GroupRepository) List(ctx context.Context) ([]groups.Group, error) {
	return loadGroups(ctx, r.queryer(), selectGroupsWithOrgSQL+` ORDER BY g.id`)
}

func (r *GroupRepository) ListByOrganization(ctx context.Context, organizationIDs ...int64) ([]groups.Group, error) {
	if len(organizationIDs) == 0 {
		return []groups.Group{}, nil
	}
	return loadGroups(ctx, r.queryer(), selectGroupsWithOrgSQL+` WHERE g.organization_id = ANY($1) ORDER BY g.id`, organizationIDs)
}

func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*groups.Group, error) {
	return getGroup(ctx, r.queryer(), id)
}

func (r *GroupRepository) Create(ctx context.Context, params groups.Params) (*groups.Group, error) {
	var created *groups.Group
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO groups (name, organization_id) VALUES ($1, $2) RETURNING id`,
			params.Name, params.OrganizationID,
		).Scan(&id)
		if err != nil {
			if isForeignKeyViolation(err, groupOrganizationFK) {
				return groups.ErrOrganizationNotFound
			}
			return fmt.Errorf("insert group: %w", err)
		}
		if err := insertMembers(ctx, tx, id, params.Members); err != nil {
			return err
		}
		created, err = getGroup(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update rewrites the group row and replaces its member set atomically.
func (r *GroupRepository) Update(ctx context.Context, id int64, params groups.Params) (*groups.Group, error) {
	var updated *groups.Group
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var existing int64
		err := tx.QueryRow(ctx, `
UPDATE groups
   SET name = $2, organization_id = $3, updated_at = now()
 WHERE id = $1
RETURNING id`,
			id, params.Name, params.OrganizationID,
		).Scan(&existing)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return groups.ErrNotFound
			}
			if isForeignKeyViolation(err, groupOrganizationFK) {
				return groups.ErrOrganizationNotFound
			}
			return fmt.Errorf("update group: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM members WHERE group_id = $1`, id); err != nil {
			return fmt.Errorf("clear group members: %w", err)
		}
		if err := insertMembers(ctx, tx, id, params.Members); err != nil {
			return err
		}
		updated, err = getGroup(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *GroupRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return groups.ErrNotFound
	}
	return nil
}

func insertMembers(ctx context.Context, tx pgx.Tx, groupID int64, members []groups.MemberParams) error {
	for _, m := range members {
		var memberID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO members (name, age, email, group_id) VALUES ($1, $2, $3, $4) RETURNING id`,
			m.Name, m.Age, m.Email, groupID,
		).Scan(&memberID)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		if len(m.MarathonIDs) == 0 {
			continue
		}
		_, err = tx.Exec(ctx, `
INSERT INTO member_marathons (member_id, marathon_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING`,
			memberID, m.MarathonIDs,
		)
		if err != nil {
			if isForeignKeyViolation(err, memberMarathonFK) {
				return groups.ErrMarathonNotFound
			}
			return fmt.Errorf("link member marathons: %w", err)
		}
	}
	return nil
}

func getGroup(ctx context.Context, q queryer, id int64) (*groups.Group, error) {
	items, err := loadGroups(ctx, q, selectGroupsWithOrgSQL+` WHERE g.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, groups.ErrNotFound
	}
	return &items[0], nil
}

// loadGroups runs a group query and fills in members and their marathons
// with one extra query per level.
func loadGroups(ctx context.Context, q queryer, query string, args ...any) ([]groups.Group, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	items := []groups.Group{}
	for rows.Next() {
		var g groups.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OrganizationID, &g.OrganizationName, &g.CreatedAt, &g.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.Members = []groups.Member{}
		items = append(items, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}

	groupIDs := make([]int64, len(items))
	index := make(map[int64]int, len(items))
	for i, g := range items {
		groupIDs[i] = g.ID
		index[g.ID] = i
	}

	members, err := loadMembers(ctx, q, groupIDs)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		i := index[m.GroupID]
		m.GroupName = items[i].Name
		items[i].Members = append(items[i].Members, m)
	}
	return items, nil
}

func loadMembers(ctx context.Context, q queryer, groupIDs []int64) ([]groups.Member, error) {
	rows, err := q.Query(ctx, `
SELECT id, name, age, email, group_id
  FROM members
 WHERE group_id = ANY($1)
 ORDER BY id`, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members := []groups.Member{}
	for rows.Next() {
		var m groups.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Age, &m.Email, &m.GroupID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Marathons = []marathons.Marathon{}
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	if len(members) == 0 {
		return members, nil
	}

	memberIDs := make([]int64, len(members))
	index := make(map[int64]int, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
		index[m.ID] = i
	}

	linkRows, err := q.Query(ctx, `
SELECT mm.member_id, ma.id, ma.identification, ma.weight, ma.score, ma.created_at, ma.updated_at
  FROM member_marathons mm
  JOIN marathons ma ON ma.id = mm.marathon_id
 WHERE mm.member_id = ANY($1)
 ORDER BY mm.member_id, ma.id`, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("list member marathons: %w", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var memberID int64
		var ma marathons.Marathon
		if err := linkRows.Scan(&memberID, &ma.ID, &ma.Identification, &ma.Weight, &ma.Score, &ma.CreatedAt, &ma.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan member marathon: %w", err)
		}
		i := index[memberID]
		members[i].Marathons = append(members[i].Marathons, ma)
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member marathons: %w", err)
	}
	return members, nil
}
