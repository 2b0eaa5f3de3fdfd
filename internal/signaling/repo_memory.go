package signaling

import (
	"context"
	"sync"

	"call-relay/internal/calls"
)

// CallLocker runs fn while the call's status cannot change, and reports
// purged calls. calls.MemoryRepo satisfies it.
type CallLocker interface {
	WithCall(ctx context.Context, callID string, fn func(calls.Call) error) error
	OnPurge(fn func(callIDs []string))
}

// MemoryRepo is the in-process signaling log paired with calls.MemoryRepo.
type MemoryRepo struct {
	calls CallLocker

	mu   sync.Mutex
	logs map[string][]Message
}

func NewMemoryRepo(locker CallLocker) *MemoryRepo {
	r := &MemoryRepo{calls: locker, logs: map[string][]Message{}}
	locker.OnPurge(r.forget)
	return r
}

// forget drops the logs of purged calls.
func (r *MemoryRepo) forget(callIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range callIDs {
		delete(r.logs, id)
	}
}

// Len returns the number of calls with a stored log.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *MemoryRepo) Append(ctx context.Context, msg Message) (Message, error) {
	err := r.calls.WithCall(ctx, msg.CallID, func(c calls.Call) error {
		if c.Status.Terminal() {
			return calls.Errorf(calls.CodeUpdateFailed, "call is %s", c.Status)
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		msg.Seq = int64(len(r.logs[msg.CallID])) + 1
		r.logs[msg.CallID] = append(r.logs[msg.CallID], msg)
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (r *MemoryRepo) ListSince(ctx context.Context, callID string, afterSeq int64) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log := r.logs[callID]
	out := make([]Message, 0)
	for _, m := range log {
		if m.Seq > afterSeq {
			out = append(out, m)
		}
	}
	return out, nil
}
