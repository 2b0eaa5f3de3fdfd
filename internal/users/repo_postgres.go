package users

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo reads the users and user_blocks tables. The tables are owned by
// the account service; this process only reads them.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Lookup(ctx context.Context, id string) (Summary, error) {
	const q = `
SELECT id, display_name, avatar_url
FROM users
WHERE id = $1
`
	var u Summary
	err := r.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.DisplayName, &u.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, err
	}
	return u, nil
}

func (r *PostgresRepo) CanCommunicate(ctx context.Context, a, b string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM user_blocks
  WHERE (blocker_id = $1 AND blocked_id = $2)
     OR (blocker_id = $2 AND blocked_id = $1)
)
`
	var blocked bool
	if err := r.db.QueryRowContext(ctx, q, a, b).Scan(&blocked); err != nil {
		return false, err
	}
	return !blocked, nil
}
