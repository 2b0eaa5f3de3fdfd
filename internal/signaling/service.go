package signaling

import (
	"context"
	"time"

	"call-relay/internal/calls"
)

// Repository stores the per-call signaling log.
type Repository interface {
	// Append assigns the next seq for msg.CallID and stores msg. It fails with
	// update_failed when the session is terminal and not_found when it is gone.
	Append(ctx context.Context, msg Message) (Message, error)
	ListSince(ctx context.Context, callID string, afterSeq int64) ([]Message, error)
}

// Sessions resolves a session for one of its participants.
type Sessions interface {
	GetFor(ctx context.Context, callID, userID string) (calls.Call, error)
}

type Observer interface {
	SignalAppended(ctx context.Context, msg Message)
}

// Service relays offers, answers and ICE candidates between the two peers of a call.
type Service struct {
	repo      Repository
	sessions  Sessions
	observers []Observer
	clock     func() time.Time
}

func NewService(repo Repository, sessions Sessions) *Service {
	return &Service{repo: repo, sessions: sessions, clock: time.Now}
}

func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

func (s *Service) Observe(o Observer) { s.observers = append(s.observers, o) }

// Append validates msg and adds it to the call's log on behalf of senderID.
func (s *Service) Append(ctx context.Context, callID, senderID string, msg Message) (Message, error) {
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	c, err := s.sessions.GetFor(ctx, callID, senderID)
	if err != nil {
		return Message{}, err
	}
	if c.Status.Terminal() {
		return Message{}, calls.Errorf(calls.CodeUpdateFailed, "call is %s", c.Status)
	}

	msg.CallID = c.CallID
	msg.SenderID = senderID
	msg.Seq = 0
	msg.CreatedAt = s.clock().UTC()

	stored, err := s.repo.Append(ctx, msg)
	if err != nil {
		return Message{}, err
	}
	for _, o := range s.observers {
		o.SignalAppended(ctx, stored)
	}
	return stored, nil
}

// Read returns the messages after sinceSeq in submission order. Terminal
// sessions stay readable until purged.
func (s *Service) Read(ctx context.Context, callID, userID string, sinceSeq int64) ([]Message, error) {
	if sinceSeq < 0 {
		return nil, calls.Errorf(calls.CodeInvalidInput, "since must not be negative")
	}
	c, err := s.sessions.GetFor(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSince(ctx, c.CallID, sinceSeq)
}

// LastSeq is the highest seq in msgs, or since when msgs is empty.
func LastSeq(msgs []Message, since int64) int64 {
	if len(msgs) == 0 {
		return since
	}
	return msgs[len(msgs)-1].Seq
}
