package signaling

import (
	"context"
	"database/sql"
	"errors"

	"call-relay/internal/calls"
	"call-relay/pkg/utils"
)

// PostgresRepo stores the log in call_signals. Appends take the calls row
// lock, which serializes them with each other and with status changes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, msg Message) (Message, error) {
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const lockQ = `SELECT status FROM calls WHERE call_id = $1 FOR UPDATE`
		var status calls.Status
		if err := tx.QueryRowContext(ctx, lockQ, msg.CallID).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return calls.Errorf(calls.CodeNotFound, "call not found")
			}
			return err
		}
		if status.Terminal() {
			return calls.Errorf(calls.CodeUpdateFailed, "call is %s", status)
		}

		const insertQ = `
INSERT INTO call_signals (
  call_id, seq, sender_id, type, sdp, candidate, sdp_mid, sdp_mline_index, username_fragment, created_at
)
SELECT $1::uuid, COALESCE(MAX(seq), 0) + 1, $2::text, $3::text, $4::text, $5::text,
       $6::text, $7::int, $8::text, $9::timestamptz
FROM call_signals
WHERE call_id = $1::uuid
RETURNING seq
`
		var mline *int32
		if msg.SDPMLineIndex != nil {
			v := int32(*msg.SDPMLineIndex)
			mline = &v
		}
		return tx.QueryRowContext(ctx, insertQ,
			msg.CallID, msg.SenderID, msg.Type, msg.SDP, msg.Candidate,
			msg.SDPMid, mline, msg.UsernameFragment, msg.CreatedAt,
		).Scan(&msg.Seq)
	})
	if err != nil {
		return Message{}, calls.StoreErr("append signal", err)
	}
	return msg, nil
}

func (r *PostgresRepo) ListSince(ctx context.Context, callID string, afterSeq int64) ([]Message, error) {
	const q = `
SELECT call_id, seq, sender_id, type, sdp, candidate, sdp_mid, sdp_mline_index, username_fragment, created_at
FROM call_signals
WHERE call_id = $1 AND seq > $2
ORDER BY seq ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID, afterSeq)
	if err != nil {
		return nil, calls.StoreErr("list signals", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var (
			m     Message
			mline sql.NullInt32
		)
		if err := rows.Scan(
			&m.CallID, &m.Seq, &m.SenderID, &m.Type, &m.SDP, &m.Candidate,
			&m.SDPMid, &mline, &m.UsernameFragment, &m.CreatedAt,
		); err != nil {
			return nil, calls.StoreErr("list signals", err)
		}
		if mline.Valid {
			v := uint16(mline.Int32)
			m.SDPMLineIndex = &v
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, calls.StoreErr("list signals", err)
	}
	return out, nil
}
