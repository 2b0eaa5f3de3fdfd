package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-relay/internal/calls"
	"call-relay/internal/users"
)

func TestReporting_StatsAggregates(t *testing.T) {
	ctx := context.Background()
	dir := users.NewMemoryRepo()
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		dir.Put(users.Summary{ID: id})
	}
	repo := calls.NewMemoryRepo()
	svc := calls.NewService(repo, dir, dir, calls.Settings{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	// completed 30s video call, outgoing
	c1, _ := svc.Create(ctx, "alice", "bob", calls.CallTypeVideo)
	_, _ = svc.UpdateStatus(ctx, c1.CallID, calls.StatusActive, "")
	now = now.Add(30 * time.Second)
	_, _ = svc.UpdateStatus(ctx, c1.CallID, calls.StatusEnded, calls.EndReasonUserEnded)

	// completed 10s audio call, incoming
	c2, _ := svc.Create(ctx, "carol", "alice", calls.CallTypeAudio)
	_, _ = svc.UpdateStatus(ctx, c2.CallID, calls.StatusActive, "")
	now = now.Add(10 * time.Second)
	_, _ = svc.UpdateStatus(ctx, c2.CallID, calls.StatusEnded, "")

	// declined, incoming
	c3, _ := svc.Create(ctx, "dave", "alice", calls.CallTypeAudio)
	_, _ = svc.UpdateStatus(ctx, c3.CallID, calls.StatusDeclined, calls.EndReasonDeclined)

	// still ringing, outgoing
	_, _ = svc.Create(ctx, "alice", "bob", calls.CallTypeAudio)

	rs := NewService(repo)
	rs.SetClock(func() time.Time { return now })
	out, err := rs.Stats(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Days != DefaultStatsDays {
		t.Fatalf("expected default window, got %d", out.Days)
	}
	if out.TotalCalls != 4 {
		t.Fatalf("expected 4 calls, got %d", out.TotalCalls)
	}
	if out.CompletedCalls != 2 || out.DeclinedCalls != 1 || out.OpenCalls != 1 {
		t.Fatalf("unexpected breakdown %+v", out)
	}
	if out.OutgoingCalls != 2 || out.IncomingCalls != 2 {
		t.Fatalf("expected 2 outgoing and 2 incoming, got %d/%d", out.OutgoingCalls, out.IncomingCalls)
	}
	if out.TotalDurationSeconds != 40 || out.AverageDurationSeconds != 20 {
		t.Fatalf("expected 40s total and 20s average, got %d/%d", out.TotalDurationSeconds, out.AverageDurationSeconds)
	}
}

func TestReporting_StatsWindow(t *testing.T) {
	ctx := context.Background()
	dir := users.NewMemoryRepo()
	dir.Put(users.Summary{ID: "alice"})
	dir.Put(users.Summary{ID: "bob"})
	repo := calls.NewMemoryRepo()
	svc := calls.NewService(repo, dir, dir, calls.Settings{})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	old, _ := svc.Create(ctx, "alice", "bob", calls.CallTypeAudio)
	_, _ = svc.UpdateStatus(ctx, old.CallID, calls.StatusCancelled, "")

	now = now.AddDate(0, 0, 10)
	rs := NewService(repo)
	rs.SetClock(func() time.Time { return now })

	out, _ := rs.Stats(ctx, "alice", 7)
	if out.TotalCalls != 0 {
		t.Fatalf("expected call outside 7 day window excluded, got %d", out.TotalCalls)
	}
	out, _ = rs.Stats(ctx, "alice", 1000)
	if out.Days != MaxStatsDays || out.TotalCalls != 1 || out.CancelledCalls != 1 {
		t.Fatalf("expected capped window including the call, got %+v", out)
	}

	if _, err := rs.Stats(ctx, "", 7); err == nil {
		t.Fatalf("expected error for missing user")
	}
}

func TestReporting_StatsRequiresUser(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo())
	_, err := svc.Stats(context.Background(), "", 7)
	if !errors.Is(err, calls.ErrInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if calls.CodeOf(err) != calls.CodeInvalidInput {
		t.Fatalf("expected invalid_input code, got %s", calls.CodeOf(err))
	}
}
