package reporting

import (
	"context"
	"errors"
	"time"

	"call-relay/internal/calls"
)

// Repository abstracts data access for reporting. Both call stores implement it.
type Repository interface {
	ListSince(ctx context.Context, userID string, since time.Time) ([]calls.Call, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service { return &Service{repo: repo, clock: time.Now} }

func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Stats summarizes userID's calls over the last days days. days <= 0 means
// the default window; larger windows are capped.
func (s *Service) Stats(ctx context.Context, userID string, days int) (CallStats, error) {
	if userID == "" {
		return CallStats{}, calls.Errorf(calls.CodeInvalidInput, "user_id is required")
	}
	if s.repo == nil {
		return CallStats{}, errors.New("reporting: repository not configured")
	}
	if days <= 0 {
		days = DefaultStatsDays
	}
	if days > MaxStatsDays {
		days = MaxStatsDays
	}

	since := s.clock().UTC().AddDate(0, 0, -days)
	rows, err := s.repo.ListSince(ctx, userID, since)
	if err != nil {
		return CallStats{}, err
	}

	out := CallStats{UserID: userID, Days: days, Since: since}
	for _, c := range rows {
		out.TotalCalls++
		switch c.DirectionFor(userID) {
		case calls.DirectionOutgoing:
			out.OutgoingCalls++
		case calls.DirectionIncoming:
			out.IncomingCalls++
		}
		switch c.CallType {
		case calls.CallTypeAudio:
			out.AudioCalls++
		case calls.CallTypeVideo:
			out.VideoCalls++
		}

		switch c.Status {
		case calls.StatusEnded:
			if c.StartedAt != nil {
				out.CompletedCalls++
				if c.DurationSeconds != nil {
					out.TotalDurationSeconds += *c.DurationSeconds
				}
			}
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusDeclined:
			out.DeclinedCalls++
		case calls.StatusCancelled:
			out.CancelledCalls++
		case calls.StatusPending, calls.StatusRinging, calls.StatusActive:
			out.OpenCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	return out, nil
}
