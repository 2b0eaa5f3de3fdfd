package calls

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"call-relay/internal/users"
	"call-relay/pkg/logger"
)

// Settings are the lifecycle timings, see config.CallsConfig.
type Settings struct {
	DuplicateWindow time.Duration
	PendingWindow   time.Duration
	RingTimeout     time.Duration
	Retention       time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.DuplicateWindow <= 0 {
		s.DuplicateWindow = 5 * time.Minute
	}
	if s.PendingWindow <= 0 {
		s.PendingWindow = 2 * time.Minute
	}
	if s.RingTimeout <= 0 {
		s.RingTimeout = 2 * time.Minute
	}
	if s.Retention <= 0 {
		s.Retention = 90 * 24 * time.Hour
	}
	return s
}

// Service owns the call session lifecycle. It is the only writer of status
// and lifecycle timestamps.
type Service struct {
	repo      Repository
	directory users.Directory
	perms     users.Permissions
	settings  Settings
	observers observers
	clock     func() time.Time
}

func NewService(repo Repository, directory users.Directory, perms users.Permissions, settings Settings) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		perms:     perms,
		settings:  settings.withDefaults(),
		clock:     time.Now,
	}
}

// SetClock replaces the time source; used by tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Observe registers o for lifecycle notifications. Not safe to call once serving.
func (s *Service) Observe(o Observer) { s.observers = append(s.observers, o) }

func (s *Service) Settings() Settings { return s.settings }

var errBlocked = &Error{Code: CodeInvalidInput, Msg: "blocked"}

// Create opens a new pending session from callerID to recipientID.
func (s *Service) Create(ctx context.Context, callerID, recipientID string, callType CallType) (Call, error) {
	if callerID == "" || recipientID == "" {
		return Call{}, Errorf(CodeInvalidInput, "caller_id and recipient_id are required")
	}
	if callerID == recipientID {
		return Call{}, Errorf(CodeInvalidInput, "cannot call yourself")
	}
	if !callType.Valid() {
		return Call{}, Errorf(CodeInvalidInput, "call_type must be audio or video")
	}

	if _, err := s.directory.Lookup(ctx, callerID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Call{}, Errorf(CodeInvalidInput, "invalid caller: unknown user %q", callerID)
		}
		return Call{}, StoreErr("lookup caller", err)
	}
	if _, err := s.directory.Lookup(ctx, recipientID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Call{}, Errorf(CodeInvalidInput, "invalid recipient: unknown user %q", recipientID)
		}
		return Call{}, StoreErr("lookup recipient", err)
	}
	ok, err := s.perms.CanCommunicate(ctx, callerID, recipientID)
	if err != nil {
		return Call{}, StoreErr("check permissions", err)
	}
	if !ok {
		return Call{}, errBlocked
	}

	now := s.clock().UTC()
	c := Call{
		CallID:      uuid.NewString(),
		CallerID:    callerID,
		RecipientID: recipientID,
		CallType:    callType,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, superseded, err := s.repo.Create(ctx, c, now.Add(-s.settings.DuplicateWindow), now)
	if err != nil {
		return Call{}, err
	}

	for _, old := range superseded {
		logger.From(ctx).Info("stale call superseded", "call_id", old.CallID, "pair", PairKey(callerID, recipientID))
		s.observers.changed(ctx, old.Call, old.From)
	}
	s.observers.created(ctx, created)
	return created, nil
}

// Get returns the session by its public id.
func (s *Service) Get(ctx context.Context, callID string) (Call, error) {
	if _, err := uuid.Parse(callID); err != nil {
		return Call{}, errCallNotFound
	}
	return s.repo.Get(ctx, callID)
}

// GetFor is Get restricted to participants of the session.
func (s *Service) GetFor(ctx context.Context, callID, userID string) (Call, error) {
	c, err := s.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if !c.IsParticipant(userID) {
		return Call{}, Errorf(CodeAccessDenied, "not a participant of this call")
	}
	return c, nil
}

// UpdateStatus moves a session to status, see transitions.go for what is allowed.
// Same-status updates are rejected like any other disallowed transition.
func (s *Service) UpdateStatus(ctx context.Context, callID string, status Status, endReason string) (Call, error) {
	if !status.Valid() {
		return Call{}, Errorf(CodeInvalidInput, "unknown status %q", status)
	}
	if _, err := uuid.Parse(callID); err != nil {
		return Call{}, errCallNotFound
	}

	var from Status
	updated, err := s.repo.Transition(ctx, callID, func(cur Call) (Call, error) {
		from = cur.Status
		return cur.Transition(status, endReason, s.clock().UTC())
	})
	if err != nil {
		return Call{}, err
	}

	s.observers.changed(ctx, updated, from)
	return updated, nil
}

// UpdateStatusFor is UpdateStatus restricted to participants of the session.
func (s *Service) UpdateStatusFor(ctx context.Context, callID, userID string, status Status, endReason string) (Call, error) {
	if !status.Valid() {
		return Call{}, Errorf(CodeInvalidInput, "unknown status %q", status)
	}
	if _, err := s.GetFor(ctx, callID, userID); err != nil {
		return Call{}, err
	}
	return s.UpdateStatus(ctx, callID, status, endReason)
}

// ExpireStale marks pending/ringing sessions older than timeout as missed.
// Active sessions are never touched. A zero timeout uses the configured ring timeout.
func (s *Service) ExpireStale(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = s.settings.RingTimeout
	}
	now := s.clock().UTC()
	expired, err := s.repo.ExpireStale(ctx, now.Add(-timeout), now)
	if err != nil {
		return 0, err
	}
	for _, e := range expired {
		s.observers.changed(ctx, e.Call, e.From)
	}
	return len(expired), nil
}

// PurgeEnded deletes terminal sessions that ended more than retention ago.
// Their signaling messages go with them.
func (s *Service) PurgeEnded(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = s.settings.Retention
	}
	return s.repo.PurgeEnded(ctx, s.clock().UTC().Add(-retention))
}
