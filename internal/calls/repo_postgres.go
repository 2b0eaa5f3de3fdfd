package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"call-relay/pkg/utils"
)

// openPairIndex is the partial unique index over pair_key for open sessions.
const openPairIndex = "calls_open_pair_key"

const callColumns = `id, call_id, caller_id, recipient_id, call_type, status,
  started_at, ended_at, duration_seconds, end_reason, created_at, updated_at`

// PostgresRepo stores sessions in the calls table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	err := row.Scan(
		&c.ID, &c.CallID, &c.CallerID, &c.RecipientID, &c.CallType, &c.Status,
		&c.StartedAt, &c.EndedAt, &c.DurationSeconds, &c.EndReason, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// expireReturning qualifies the call columns for the stale-session UPDATE ... FROM,
// and adds the status the row had before the update.
const expireReturning = `c.id, c.call_id, c.caller_id, c.recipient_id, c.call_type, c.status,
  c.started_at, c.ended_at, c.duration_seconds, c.end_reason, c.created_at, c.updated_at, stale.status`

func collectExpiries(rows *sql.Rows) ([]Expiry, error) {
	defer rows.Close()
	out := make([]Expiry, 0)
	for rows.Next() {
		var e Expiry
		err := rows.Scan(
			&e.ID, &e.CallID, &e.CallerID, &e.RecipientID, &e.CallType, &e.Status,
			&e.StartedAt, &e.EndedAt, &e.DurationSeconds, &e.EndReason, &e.CreatedAt, &e.UpdatedAt, &e.From,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func collectCalls(rows *sql.Rows) ([]Call, error) {
	defer rows.Close()
	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Create(ctx context.Context, c Call, staleBefore, now time.Time) (Call, []Expiry, error) {
	var superseded []Expiry
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const expireQ = `
WITH stale AS (
  SELECT id, status FROM calls
  WHERE pair_key = $1
    AND status IN ('pending', 'ringing')
    AND created_at < $3
  FOR UPDATE
)
UPDATE calls c
SET status = 'missed', end_reason = 'timeout', ended_at = $2, updated_at = $2
FROM stale
WHERE c.id = stale.id
RETURNING ` + expireReturning
		rows, err := tx.QueryContext(ctx, expireQ, PairKey(c.CallerID, c.RecipientID), now, staleBefore)
		if err != nil {
			return err
		}
		if superseded, err = collectExpiries(rows); err != nil {
			return err
		}

		const insertQ = `
INSERT INTO calls (call_id, caller_id, recipient_id, pair_key, call_type, status, end_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, '', $7, $7)
RETURNING id
`
		err = tx.QueryRowContext(ctx, insertQ,
			c.CallID, c.CallerID, c.RecipientID, PairKey(c.CallerID, c.RecipientID),
			c.CallType, c.Status, c.CreatedAt,
		).Scan(&c.ID)
		if utils.IsUniqueViolation(err, openPairIndex) {
			return errDuplicate
		}
		return err
	})
	if err != nil {
		if errors.Is(err, errDuplicate) {
			// The expiry rolled back with the failed insert.
			return Call{}, nil, err
		}
		return Call{}, nil, StoreErr("create", err)
	}
	return c, superseded, nil
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, errCallNotFound
		}
		return Call{}, StoreErr("get", err)
	}
	return c, nil
}

func (r *PostgresRepo) Transition(ctx context.Context, callID string, fn func(Call) (Call, error)) (Call, error) {
	var next Call
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1 FOR UPDATE`
		cur, err := scanCall(tx.QueryRowContext(ctx, q, callID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errCallNotFound
			}
			return err
		}

		next, err = fn(cur)
		if err != nil {
			return err
		}

		const upd = `
UPDATE calls
SET status = $3, started_at = $4, ended_at = $5, duration_seconds = $6, end_reason = $7, updated_at = $8
WHERE id = $1 AND status = $2
`
		res, err := tx.ExecContext(ctx, upd,
			cur.ID, cur.Status, next.Status, next.StartedAt, next.EndedAt, next.DurationSeconds, next.EndReason, next.UpdatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return Errorf(CodeConflict, "call changed concurrently")
		}
		return nil
	})
	if err != nil {
		return Call{}, StoreErr("transition", err)
	}
	return next, nil
}

func (r *PostgresRepo) ExpireStale(ctx context.Context, createdBefore, now time.Time) ([]Expiry, error) {
	q := `
WITH stale AS (
  SELECT id, status FROM calls
  WHERE status IN ('pending', 'ringing')
    AND created_at < $2
  FOR UPDATE SKIP LOCKED
)
UPDATE calls c
SET status = 'missed', end_reason = 'timeout', ended_at = $1, updated_at = $1
FROM stale
WHERE c.id = stale.id
RETURNING ` + expireReturning
	rows, err := r.db.QueryContext(ctx, q, now, createdBefore)
	if err != nil {
		return nil, StoreErr("expire stale", err)
	}
	out, err := collectExpiries(rows)
	if err != nil {
		return nil, StoreErr("expire stale", err)
	}
	return out, nil
}

func (r *PostgresRepo) PurgeEnded(ctx context.Context, endedBefore time.Time) (int64, error) {
	const q = `
DELETE FROM calls
WHERE status IN ('ended', 'cancelled', 'declined', 'missed')
  AND ended_at < $1
`
	res, err := r.db.ExecContext(ctx, q, endedBefore)
	if err != nil {
		return 0, StoreErr("purge ended", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, StoreErr("purge ended", err)
	}
	return n, nil
}

func (r *PostgresRepo) ListOpen(ctx context.Context, userID string) ([]Call, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE (caller_id = $1 OR recipient_id = $1)
  AND status IN ('pending', 'ringing', 'active')
ORDER BY created_at DESC, id DESC
`
	return r.query(ctx, "list open", q, userID)
}

func (r *PostgresRepo) ListRinging(ctx context.Context, recipientID string, createdAfter time.Time) ([]Call, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE recipient_id = $1
  AND status IN ('pending', 'ringing')
  AND created_at > $2
ORDER BY created_at DESC, id DESC
`
	return r.query(ctx, "list ringing", q, recipientID, createdAfter)
}

func (r *PostgresRepo) ListHistory(ctx context.Context, userID string, hq HistoryQuery) ([]Call, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE (caller_id = $1 OR recipient_id = $1)
  AND ($2 = '' OR call_type = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`
	return r.query(ctx, "list history", q, userID, string(hq.CallType), hq.Limit, hq.Offset)
}

func (r *PostgresRepo) ListSince(ctx context.Context, userID string, since time.Time) ([]Call, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE (caller_id = $1 OR recipient_id = $1)
  AND created_at >= $2
ORDER BY created_at DESC, id DESC
`
	return r.query(ctx, "list since", q, userID, since)
}

func (r *PostgresRepo) query(ctx context.Context, op, q string, args ...any) ([]Call, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, StoreErr(op, err)
	}
	out, err := collectCalls(rows)
	if err != nil {
		return nil, StoreErr(op, err)
	}
	return out, nil
}
