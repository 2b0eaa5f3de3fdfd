package calls

import (
	"context"
	"time"
)

// Repository is the persistence contract for call sessions.
//
// Implementations must make Create and Transition atomic with respect to
// each other: at most one open session per pair, and a status change is
// applied only against the status it was computed from.
type Repository interface {
	// Create first moves pending/ringing sessions of c's pair created before
	// staleBefore to missed/timeout (returned as superseded), then inserts c.
	// It fails with a conflict when an open session for the pair remains.
	Create(ctx context.Context, c Call, staleBefore, now time.Time) (created Call, superseded []Expiry, err error)

	Get(ctx context.Context, callID string) (Call, error)

	// Transition loads the session under lock, applies fn and persists the result.
	// Nothing is written when fn returns an error.
	Transition(ctx context.Context, callID string, fn func(Call) (Call, error)) (Call, error)

	// ExpireStale moves pending/ringing sessions created before createdBefore to missed/timeout.
	ExpireStale(ctx context.Context, createdBefore, now time.Time) ([]Expiry, error)

	// PurgeEnded deletes terminal sessions that ended before endedBefore.
	PurgeEnded(ctx context.Context, endedBefore time.Time) (int64, error)

	ListOpen(ctx context.Context, userID string) ([]Call, error)
	ListRinging(ctx context.Context, recipientID string, createdAfter time.Time) ([]Call, error)
	ListHistory(ctx context.Context, userID string, q HistoryQuery) ([]Call, error)
	ListSince(ctx context.Context, userID string, since time.Time) ([]Call, error)
}

// Expiry is a session moved to missed/timeout by a sweep, with the status it had.
type Expiry struct {
	Call
	From Status
}

type HistoryQuery struct {
	Limit    int
	Offset   int
	CallType CallType // empty means any
}

var errDuplicate = &Error{Code: CodeConflict, Msg: "duplicate call: an open call already exists between these users"}

var errCallNotFound = &Error{Code: CodeNotFound, Msg: "call not found"}
