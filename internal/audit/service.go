package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"call-relay/internal/auth"
	"call-relay/internal/calls"
	"call-relay/pkg/logger"
)

// Repository is the persistence contract for audit events.
// It is append-only; retention happens through the calls table.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, callID string) ([]Event, error)
}

// Service records who moved a call through its lifecycle.
// Callers treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Type != EventTypeSweep && e.CallID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.ActorUserID == "" {
		e.ActorUserID, _ = auth.UserID(ctx)
	}
	if e.ActorRole == "" {
		e.ActorRole, _ = auth.Role(ctx)
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	return s.repo.ListByCall(ctx, callID)
}

// CallCreated implements calls.Observer.
func (s *Service) CallCreated(ctx context.Context, c calls.Call) {
	meta, _ := json.Marshal(map[string]string{
		"caller_id":    c.CallerID,
		"recipient_id": c.RecipientID,
		"call_type":    string(c.CallType),
	})
	s.record(ctx, Event{
		Type:     EventTypeCallCreated,
		CallID:   c.CallID,
		ToStatus: string(c.Status),
		Message:  "call created",
		Metadata: string(meta),
	})
}

func (s *Service) CallStatusChanged(ctx context.Context, c calls.Call, from calls.Status) {
	e := Event{
		Type:       EventTypeStatusChanged,
		CallID:     c.CallID,
		FromStatus: string(from),
		ToStatus:   string(c.Status),
		Message:    fmt.Sprintf("%s -> %s", from, c.Status),
	}
	if c.EndReason != "" {
		meta, _ := json.Marshal(map[string]string{"end_reason": c.EndReason})
		e.Metadata = string(meta)
	}
	s.record(ctx, e)
}

// LogSweep records a sweep run (expire or purge) and how many calls it touched.
func (s *Service) LogSweep(ctx context.Context, kind string, affected int64) error {
	meta, _ := json.Marshal(map[string]any{"kind": kind, "affected": affected})
	return s.Append(ctx, Event{
		Type:     EventTypeSweep,
		Message:  kind + " sweep",
		Metadata: string(meta),
	})
}

func (s *Service) record(ctx context.Context, e Event) {
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", e.Type, "call_id", e.CallID, "err", err)
	}
}
