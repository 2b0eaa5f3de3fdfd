package calls

import (
	"time"
)

// Call is one attempt to set up an audio/video call between two users.
//
// Invariants:
// - CallID is unique forever and is the handle both peers use.
// - Status only moves forward (see transitions.go); terminal states are final.
// - StartedAt is set iff the call ever reached active; DurationSeconds only then.
// - At most one non-terminal call exists per unordered pair (enforced by the store).
type Call struct {
	ID          int64    `json:"id" db:"id"`
	CallID      string   `json:"call_id" db:"call_id"`
	CallerID    string   `json:"caller_id" db:"caller_id"`
	RecipientID string   `json:"recipient_id" db:"recipient_id"`
	CallType    CallType `json:"call_type" db:"call_type"`
	Status      Status   `json:"status" db:"status"`

	StartedAt       *time.Time `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at" db:"ended_at"`
	DurationSeconds *int       `json:"duration_seconds" db:"duration_seconds"`
	EndReason       string     `json:"end_reason" db:"end_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRinging   Status = "ringing"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
	StatusDeclined  Status = "declined"
	StatusMissed    Status = "missed"
)

// OpenStatuses are the non-terminal statuses.
var OpenStatuses = []Status{StatusPending, StatusRinging, StatusActive}

// RingingStatuses are the statuses the sweeper expires and the incoming-call poll returns.
var RingingStatuses = []Status{StatusPending, StatusRinging}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRinging, StatusActive,
		StatusEnded, StatusCancelled, StatusDeclined, StatusMissed:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusEnded, StatusCancelled, StatusDeclined, StatusMissed:
		return true
	default:
		return false
	}
}

func (s Status) ringing() bool {
	return s == StatusPending || s == StatusRinging
}

// End reasons written by the service itself. Clients may send their own short codes.
const (
	EndReasonTimeout   = "timeout"
	EndReasonUserEnded = "user_ended"
	EndReasonDeclined  = "declined"
)

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// DirectionFor is outgoing exactly when userID placed the call.
func (c Call) DirectionFor(userID string) Direction {
	if c.CallerID == userID {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// OtherParty returns the participant that is not userID.
func (c Call) OtherParty(userID string) string {
	if c.CallerID == userID {
		return c.RecipientID
	}
	return c.CallerID
}

func (c Call) IsParticipant(userID string) bool {
	return userID != "" && (c.CallerID == userID || c.RecipientID == userID)
}

// PairKey canonicalizes an unordered pair of user ids.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
