package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to call_audit_events. The table has no UPDATE path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_audit_events (
  id, type, actor_user_id, actor_role, call_id, from_status, to_status, message, metadata, created_at
)
VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, NULLIF($9, '')::jsonb, $10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.ActorUserID, e.ActorRole, e.CallID,
		e.FromStatus, e.ToStatus, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	const q = `
SELECT id, type, actor_user_id, actor_role, call_id::text, from_status, to_status, message,
       COALESCE(metadata::text, ''), created_at
FROM call_audit_events
WHERE call_id = $1
ORDER BY created_at ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.Type, &e.ActorUserID, &e.ActorRole, &e.CallID,
			&e.FromStatus, &e.ToStatus, &e.Message, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
