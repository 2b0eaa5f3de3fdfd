package calls

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisPendingCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisPendingCache(rdb, ttl), mr
}

func TestRedisPendingCache_MissThenHit(t *testing.T) {
	cache, mr := newTestCache(t, 3*time.Second)
	ctx := context.Background()

	if cs, ok, err := cache.Get(ctx, "bob"); err != nil || ok || cs != nil {
		t.Fatalf("expected clean miss, got %v %v %v", cs, ok, err)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []Call{{ID: 7, CallID: "c-1", CallerID: "alice", RecipientID: "bob", CallType: CallTypeVideo, Status: StatusPending, CreatedAt: created, UpdatedAt: created}}
	if err := cache.Set(ctx, "bob", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("calls:pending:bob") {
		t.Fatalf("expected key calls:pending:bob")
	}
	if ttl := mr.TTL("calls:pending:bob"); ttl != 3*time.Second {
		t.Fatalf("expected 3s ttl, got %s", ttl)
	}

	got, ok, err := cache.Get(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].CallID != "c-1" || got[0].Status != StatusPending || !got[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected cached calls %+v", got)
	}
}

func TestRedisPendingCache_EmptyListIsAHit(t *testing.T) {
	cache, _ := newTestCache(t, time.Second)
	ctx := context.Background()

	if err := cache.Set(ctx, "bob", []Call{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := cache.Get(ctx, "bob")
	if err != nil || !ok || len(got) != 0 {
		t.Fatalf("expected empty hit, got %v %v %v", got, ok, err)
	}
}

func TestRedisPendingCache_InvalidateAndExpiry(t *testing.T) {
	cache, mr := newTestCache(t, 2*time.Second)
	ctx := context.Background()

	if err := cache.Set(ctx, "bob", []Call{{CallID: "c-1"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Invalidate(ctx, "bob"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, err := cache.Get(ctx, "bob"); err != nil || ok {
		t.Fatalf("expected miss after invalidate, got ok=%v err=%v", ok, err)
	}
	if err := cache.Invalidate(ctx, "nobody"); err != nil {
		t.Fatalf("invalidating a missing key should succeed, got %v", err)
	}

	if err := cache.Set(ctx, "bob", []Call{{CallID: "c-2"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(3 * time.Second)
	if _, ok, err := cache.Get(ctx, "bob"); err != nil || ok {
		t.Fatalf("expected miss after ttl, got ok=%v err=%v", ok, err)
	}
}

func TestRedisPendingCache_CorruptValueIsAnError(t *testing.T) {
	cache, mr := newTestCache(t, time.Second)
	if err := mr.Set("calls:pending:bob", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := cache.Get(context.Background(), "bob"); err == nil || ok {
		t.Fatalf("expected decode error, got ok=%v err=%v", ok, err)
	}
}

func TestDirectory_PendingThroughRedisCache(t *testing.T) {
	f := newFixture()
	cache, mr := newTestCache(t, 3*time.Second)
	dir := NewDirectory(f.repo, f.users, cache, 2*time.Minute)
	dir.SetClock(f.clock.Now)
	f.svc.Observe(dir)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "alice", "bob", CallTypeAudio); err != nil {
		t.Fatalf("create: %v", err)
	}
	views, err := dir.Pending(ctx, "bob")
	if err != nil || len(views) != 1 {
		t.Fatalf("expected 1 pending, got %d (%v)", len(views), err)
	}
	if !mr.Exists("calls:pending:bob") {
		t.Fatalf("expected pending list cached in redis")
	}

	if _, err := f.svc.UpdateStatus(ctx, views[0].CallID, StatusDeclined, ""); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if mr.Exists("calls:pending:bob") {
		t.Fatalf("expected status change to invalidate the cached list")
	}
	views, err = dir.Pending(ctx, "bob")
	if err != nil || len(views) != 0 {
		t.Fatalf("expected nothing pending after decline, got %d (%v)", len(views), err)
	}
}
