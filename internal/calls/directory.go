package calls

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"call-relay/internal/users"
	"call-relay/pkg/logger"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// View is a session as seen by one participant.
type View struct {
	Call
	Direction Direction      `json:"direction"`
	OtherUser *users.Summary `json:"other_user,omitempty"`
}

// PendingCache holds the recent ringing sessions per recipient. Entries are
// filtered again on read, so a stale entry can never widen the window.
type PendingCache interface {
	Get(ctx context.Context, recipientID string) ([]Call, bool, error)
	Set(ctx context.Context, recipientID string, calls []Call) error
	Invalidate(ctx context.Context, recipientID string) error
}

// Directory answers the read side: active, pending and history lists.
type Directory struct {
	repo          Repository
	users         users.Directory
	cache         PendingCache
	pendingWindow time.Duration
	clock         func() time.Time
}

func NewDirectory(repo Repository, directory users.Directory, cache PendingCache, pendingWindow time.Duration) *Directory {
	if pendingWindow <= 0 {
		pendingWindow = 2 * time.Minute
	}
	return &Directory{
		repo:          repo,
		users:         directory,
		cache:         cache,
		pendingWindow: pendingWindow,
		clock:         time.Now,
	}
}

func (d *Directory) SetClock(clock func() time.Time) { d.clock = clock }

// Active lists the user's open sessions in either role, newest first.
func (d *Directory) Active(ctx context.Context, userID string) ([]View, error) {
	cs, err := d.repo.ListOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	return d.views(ctx, userID, cs), nil
}

// Pending lists incoming pending/ringing sessions created within the pending window.
func (d *Directory) Pending(ctx context.Context, userID string) ([]View, error) {
	cutoff := d.clock().UTC().Add(-d.pendingWindow)

	cs, hit := d.cachedPending(ctx, userID)
	if !hit {
		var err error
		cs, err = d.repo.ListRinging(ctx, userID, cutoff)
		if err != nil {
			return nil, err
		}
		if d.cache != nil {
			if err := d.cache.Set(ctx, userID, cs); err != nil {
				logger.From(ctx).Warn("pending cache set failed", "user_id", userID, "err", err)
			}
		}
	}

	cs = lo.Filter(cs, func(c Call, _ int) bool {
		return c.RecipientID == userID && c.Status.ringing() && c.CreatedAt.After(cutoff)
	})
	return d.views(ctx, userID, cs), nil
}

func (d *Directory) cachedPending(ctx context.Context, userID string) ([]Call, bool) {
	if d.cache == nil {
		return nil, false
	}
	cs, ok, err := d.cache.Get(ctx, userID)
	if err != nil {
		logger.From(ctx).Warn("pending cache get failed", "user_id", userID, "err", err)
		return nil, false
	}
	return cs, ok
}

// History lists every session involving the user, newest first.
func (d *Directory) History(ctx context.Context, userID string, q HistoryQuery) ([]View, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	if q.Offset < 0 {
		return nil, Errorf(CodeInvalidInput, "offset must not be negative")
	}
	if q.CallType != "" && !q.CallType.Valid() {
		return nil, Errorf(CodeInvalidInput, "type must be audio or video")
	}
	cs, err := d.repo.ListHistory(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	return d.views(ctx, userID, cs), nil
}

// ViewOf annotates a single session for userID.
func (d *Directory) ViewOf(ctx context.Context, userID string, c Call) View {
	v := View{Call: c, Direction: c.DirectionFor(userID)}
	other, err := d.users.Lookup(ctx, c.OtherParty(userID))
	switch {
	case err == nil:
		v.OtherUser = &other
	case errors.Is(err, users.ErrNotFound):
	default:
		logger.From(ctx).Warn("user lookup failed", "user_id", c.OtherParty(userID), "err", err)
	}
	return v
}

func (d *Directory) views(ctx context.Context, userID string, cs []Call) []View {
	out := make([]View, 0, len(cs))
	seen := map[string]*users.Summary{}
	for _, c := range cs {
		other := c.OtherParty(userID)
		if s, ok := seen[other]; ok {
			out = append(out, View{Call: c, Direction: c.DirectionFor(userID), OtherUser: s})
			continue
		}
		v := d.ViewOf(ctx, userID, c)
		seen[other] = v.OtherUser
		out = append(out, v)
	}
	return out
}

// CallCreated implements Observer by dropping the recipient's cached pending list.
func (d *Directory) CallCreated(ctx context.Context, c Call) {
	d.invalidate(ctx, c.RecipientID)
}

func (d *Directory) CallStatusChanged(ctx context.Context, c Call, from Status) {
	d.invalidate(ctx, c.RecipientID)
}

func (d *Directory) invalidate(ctx context.Context, recipientID string) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Invalidate(ctx, recipientID); err != nil {
		logger.From(ctx).Warn("pending cache invalidate failed", "user_id", recipientID, "err", err)
	}
}
