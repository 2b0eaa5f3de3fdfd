package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"call-relay/internal/calls"
	"call-relay/internal/users"
)

type countingSweeps struct {
	mu       sync.Mutex
	expires  int
	purges   int
	timeout  time.Duration
	expireFn func() (int, error)
}

func (c *countingSweeps) ExpireStale(ctx context.Context, timeout time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires++
	c.timeout = timeout
	if c.expireFn != nil {
		return c.expireFn()
	}
	return 0, nil
}

func (c *countingSweeps) PurgeEnded(ctx context.Context, retention time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purges++
	return 4, nil
}

func (c *countingSweeps) expireCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expires
}

type recorder struct {
	mu    sync.Mutex
	kinds []string
	total int64
}

func (r *recorder) LogSweep(ctx context.Context, kind string, affected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.total += affected
	return nil
}

func (r *recorder) SweepCompleted(kind string, affected int64) {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_ExpireAgainstLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := users.NewMemoryRepo()
	dir.Put(users.Summary{ID: "alice"})
	dir.Put(users.Summary{ID: "bob"})
	svc := calls.NewService(calls.NewMemoryRepo(), dir, dir, calls.Settings{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	c, err := svc.Create(ctx, "alice", "bob", calls.CallTypeAudio)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	now = now.Add(3 * time.Minute)

	rec := &recorder{}
	s := New(svc, Options{RingTimeout: 2 * time.Minute, Recorder: rec, Counter: rec, Logger: quietLogger()})
	n, err := s.Expire(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	got, _ := svc.Get(ctx, c.CallID)
	if got.Status != calls.StatusMissed {
		t.Fatalf("expected missed, got %s", got.Status)
	}
	if len(rec.kinds) != 1 || rec.kinds[0] != KindExpire {
		t.Fatalf("expected expire sweep recorded, got %v", rec.kinds)
	}

	// Nothing left: no audit noise.
	if n, _ := s.Expire(ctx); n != 0 {
		t.Fatalf("expected 0 on second pass, got %d", n)
	}
	if len(rec.kinds) != 1 {
		t.Fatalf("expected empty pass not recorded")
	}
}

func TestSweeper_PurgePassesRetention(t *testing.T) {
	sw := &countingSweeps{}
	rec := &recorder{}
	s := New(sw, Options{Retention: time.Hour, Recorder: rec, Logger: quietLogger()})
	n, err := s.Purge(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("expected 4 purged, got %d, %v", n, err)
	}
	if rec.total != 4 {
		t.Fatalf("expected recorder to see 4, got %d", rec.total)
	}
}

func TestSweeper_ScheduledRunsAndStops(t *testing.T) {
	sw := &countingSweeps{}
	s := New(sw, Options{
		RingTimeout:       time.Minute,
		SweepSchedule:     "@every 1s",
		RetentionSchedule: "@daily",
		Logger:            quietLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for sw.expireCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	if sw.expireCount() == 0 {
		t.Fatalf("expected scheduled expire to run")
	}
	if sw.timeout != time.Minute {
		t.Fatalf("expected ring timeout passed through, got %s", sw.timeout)
	}
}

func TestSweeper_FailedRunIsLoggedNotFatal(t *testing.T) {
	sw := &countingSweeps{expireFn: func() (int, error) { return 0, errors.New("db down") }}
	s := New(sw, Options{Logger: quietLogger()})
	s.runJob(context.Background(), KindExpire)
	if sw.expireCount() != 1 {
		t.Fatalf("expected one attempt")
	}
}
