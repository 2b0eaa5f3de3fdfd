package audit

import (
	"context"
	"testing"

	"call-relay/internal/auth"
	"call-relay/internal/calls"
)

func TestService_AppendRequiresTypeAndCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{CallID: "c1"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if err := svc.Append(context.Background(), Event{Type: EventTypeStatusChanged}); err == nil {
		t.Fatalf("expected error for missing call id")
	}
}

func TestService_RecordsLifecycleWithActor(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := auth.WithIdentity(context.Background(), "bob", "user")

	c := calls.Call{CallID: "c1", CallerID: "alice", RecipientID: "bob", CallType: calls.CallTypeAudio, Status: calls.StatusPending}
	svc.CallCreated(ctx, c)

	c.Status = calls.StatusDeclined
	c.EndReason = "declined"
	svc.CallStatusChanged(ctx, c, calls.StatusPending)

	evs, err := svc.ListByCall(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventTypeCallCreated {
		t.Fatalf("expected call_created first, got %s", evs[0].Type)
	}
	changed := evs[1]
	if changed.FromStatus != "pending" || changed.ToStatus != "declined" {
		t.Fatalf("unexpected transition %s -> %s", changed.FromStatus, changed.ToStatus)
	}
	if changed.ActorUserID != "bob" || changed.ActorRole != "user" {
		t.Fatalf("expected actor captured from context, got %q/%q", changed.ActorUserID, changed.ActorRole)
	}
	if changed.ID == "" || changed.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}

func TestService_LogSweepHasNoCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogSweep(context.Background(), "expire", 3); err != nil {
		t.Fatalf("log sweep: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].Type != EventTypeSweep {
		t.Fatalf("expected one sweep event, got %+v", evs)
	}
	if evs[0].ActorUserID != "" {
		t.Fatalf("expected no actor for background sweep")
	}
}
