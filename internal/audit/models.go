package audit

import "time"

// Event is an immutable, append-only audit log record of the call lifecycle.
//
// Invariants:
// - Events are never updated. They are deleted only together with their call by retention.
// - actor capture is best-effort; do not block call flows on audit failures.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event. Empty for the sweeper.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	CallID     string `json:"call_id,omitempty" db:"call_id"`
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallCreated   EventType = "call_created"
	EventTypeStatusChanged EventType = "call_status_changed"
	EventTypeSweep         EventType = "sweep"
)
