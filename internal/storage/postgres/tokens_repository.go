package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/metrics"
)

type TokenRepository struct {
	conn
}

const tokenColumns = `id, token, token_type, revoked, expired, user_id, expires_at, created_at`

func scanToken(row pgx.Row) (*users.Token, error) {
	var t users.Token
	if err := row.Scan(&t.ID, &t.Value, &t.Type, &t.Revoked, &t.Expired, &t.UserID, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepository) Save(ctx context.Context, token users.Token) (*users.Token, error) {
	return saveToken(ctx, r.queryer(), token)
}

func saveToken(ctx context.Context, q queryer, token users.Token) (*users.Token, error) {
	if token.Type == "" {
		token.Type = users.TokenTypeBearer
	}
	saved, err := scanToken(q.QueryRow(ctx, `
INSERT INTO tokens (token, token_type, revoked, expired, user_id, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+tokenColumns,
		token.Value, token.Type, token.Revoked, token.Expired, token.UserID, token.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return saved, nil
}

func (r *TokenRepository) FindByValue(ctx context.Context, value string) (_ *users.Token, err error) {
	defer func(start time.Time) { metrics.RecordQuery("tokens.find", start, err) }(time.Now())

	t, err := scanToken(r.queryer().QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token = $1`, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrTokenNotFound
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	return t, nil
}

func (r *TokenRepository) Revoke(ctx context.Context, value string) error {
	tag, err := r.queryer().Exec(ctx, `UPDATE tokens SET revoked = true, expired = true WHERE token = $1`, value)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) Rotate(ctx context.Context, userID int64, token users.Token) (revoked []string, err error) {
	defer func(start time.Time) { metrics.RecordQuery("tokens.rotate", start, err) }(time.Now())

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
UPDATE tokens
   SET revoked = true, expired = true
 WHERE user_id = $1 AND NOT revoked AND NOT expired
RETURNING token`, userID)
		if err != nil {
			return fmt.Errorf("revoke user tokens: %w", err)
		}
		values, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("collect revoked tokens: %w", err)
		}
		revoked = values

		token.UserID = userID
		_, err = saveToken(ctx, tx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

func (r *TokenRepository) PurgeInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM tokens
 WHERE ((revoked OR expired) AND created_at < $1)
    OR expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
