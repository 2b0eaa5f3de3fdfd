package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemoryRepo keeps sessions in process behind one mutex. It gives the same
// guarantees as the Postgres store and backs tests and STORE=memory.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	calls  []*Call
	byID   map[string]*Call

	onPurge []func(callIDs []string)
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]*Call{}}
}

func (r *MemoryRepo) Create(ctx context.Context, c Call, staleBefore, now time.Time) (Call, []Expiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := PairKey(c.CallerID, c.RecipientID)
	for _, existing := range r.calls {
		if PairKey(existing.CallerID, existing.RecipientID) != key || existing.Status.Terminal() {
			continue
		}
		if !existing.Status.ringing() || !existing.CreatedAt.Before(staleBefore) {
			return Call{}, nil, errDuplicate
		}
	}

	var superseded []Expiry
	for _, existing := range r.calls {
		if PairKey(existing.CallerID, existing.RecipientID) == key && existing.Status.ringing() {
			superseded = append(superseded, expire(existing, now))
		}
	}

	r.nextID++
	c.ID = r.nextID
	stored := c
	r.calls = append(r.calls, &stored)
	r.byID[c.CallID] = &stored
	return stored, superseded, nil
}

func (r *MemoryRepo) Get(ctx context.Context, callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[callID]
	if !ok {
		return Call{}, errCallNotFound
	}
	return *c, nil
}

func (r *MemoryRepo) Transition(ctx context.Context, callID string, fn func(Call) (Call, error)) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[callID]
	if !ok {
		return Call{}, errCallNotFound
	}
	next, err := fn(*c)
	if err != nil {
		return *c, err
	}
	next.ID = c.ID
	next.CallID = c.CallID
	*c = next
	return next, nil
}

// WithCall runs fn while holding the store lock, so callers can order their
// own writes against status changes of the same session.
func (r *MemoryRepo) WithCall(ctx context.Context, callID string, fn func(Call) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[callID]
	if !ok {
		return errCallNotFound
	}
	return fn(*c)
}

func (r *MemoryRepo) ExpireStale(ctx context.Context, createdBefore, now time.Time) ([]Expiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Expiry
	for _, c := range r.calls {
		if c.Status.ringing() && c.CreatedAt.Before(createdBefore) {
			out = append(out, expire(c, now))
		}
	}
	return out, nil
}

// OnPurge registers fn to run with the ids removed by PurgeEnded, so stores
// keyed by call can drop their rows the way the Postgres cascade does.
func (r *MemoryRepo) OnPurge(fn func(callIDs []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPurge = append(r.onPurge, fn)
}

func (r *MemoryRepo) PurgeEnded(ctx context.Context, endedBefore time.Time) (int64, error) {
	r.mu.Lock()
	kept := r.calls[:0]
	var purged []string
	for _, c := range r.calls {
		if c.Status.Terminal() && c.EndedAt != nil && c.EndedAt.Before(endedBefore) {
			delete(r.byID, c.CallID)
			purged = append(purged, c.CallID)
			continue
		}
		kept = append(kept, c)
	}
	r.calls = kept
	hooks := r.onPurge
	r.mu.Unlock()

	if len(purged) > 0 {
		for _, fn := range hooks {
			fn(purged)
		}
	}
	return int64(len(purged)), nil
}

func (r *MemoryRepo) ListOpen(ctx context.Context, userID string) ([]Call, error) {
	return r.list(func(c *Call) bool {
		return c.IsParticipant(userID) && !c.Status.Terminal()
	}), nil
}

func (r *MemoryRepo) ListRinging(ctx context.Context, recipientID string, createdAfter time.Time) ([]Call, error) {
	return r.list(func(c *Call) bool {
		return c.RecipientID == recipientID && c.Status.ringing() && c.CreatedAt.After(createdAfter)
	}), nil
}

func (r *MemoryRepo) ListHistory(ctx context.Context, userID string, q HistoryQuery) ([]Call, error) {
	all := r.list(func(c *Call) bool {
		return c.IsParticipant(userID) && (q.CallType == "" || c.CallType == q.CallType)
	})
	if q.Offset >= len(all) {
		return []Call{}, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

func (r *MemoryRepo) ListSince(ctx context.Context, userID string, since time.Time) ([]Call, error) {
	return r.list(func(c *Call) bool {
		return c.IsParticipant(userID) && !c.CreatedAt.Before(since)
	}), nil
}

// list returns matching sessions newest first.
func (r *MemoryRepo) list(match func(*Call) bool) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := lo.FilterMap(r.calls, func(c *Call, _ int) (Call, bool) {
		return *c, match(c)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func expire(c *Call, now time.Time) Expiry {
	from := c.Status
	c.Status = StatusMissed
	c.EndReason = EndReasonTimeout
	c.EndedAt = lo.ToPtr(now)
	c.UpdatedAt = now
	return Expiry{Call: *c, From: from}
}
