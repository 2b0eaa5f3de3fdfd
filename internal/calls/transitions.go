package calls

import (
	"time"

	"github.com/samber/lo"
)

// transitions is the forward-only lifecycle. cancelled/declined/missed are
// accepted from active to absorb inconsistent client reports; clients should send ended.
var transitions = map[Status][]Status{
	StatusPending: {StatusRinging, StatusActive, StatusCancelled, StatusDeclined, StatusMissed},
	StatusRinging: {StatusActive, StatusCancelled, StatusDeclined, StatusMissed},
	StatusActive:  {StatusEnded, StatusCancelled, StatusDeclined, StatusMissed},
}

func CanTransition(from, to Status) bool {
	return lo.Contains(transitions[from], to)
}

const maxEndReasonLen = 64

// Transition returns c moved to status `to` at `now`, stamping started_at on
// the first move into active and ended_at/duration on the move into a terminal state.
func (c Call) Transition(to Status, endReason string, now time.Time) (Call, error) {
	if !to.Valid() {
		return c, Errorf(CodeInvalidInput, "unknown status %q", to)
	}
	if len(endReason) > maxEndReasonLen {
		return c, Errorf(CodeInvalidInput, "end_reason longer than %d characters", maxEndReasonLen)
	}
	if !CanTransition(c.Status, to) {
		return c, Errorf(CodeUpdateFailed, "transition %s -> %s not allowed", c.Status, to)
	}

	c.Status = to
	c.UpdatedAt = now

	if to == StatusActive && c.StartedAt == nil {
		c.StartedAt = lo.ToPtr(now)
	}
	if to.Terminal() {
		c.EndedAt = lo.ToPtr(now)
		if c.StartedAt != nil {
			secs := int(now.Sub(*c.StartedAt) / time.Second)
			c.DurationSeconds = lo.ToPtr(max(secs, 0))
		}
		if endReason != "" {
			c.EndReason = endReason
		}
	}
	return c, nil
}
