package users

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRepo_Lookup(t *testing.T) {
	r := NewMemoryRepo()
	r.Put(Summary{ID: "u1", DisplayName: "Ada"})

	u, err := r.Lookup(context.Background(), "u1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.DisplayName != "Ada" {
		t.Fatalf("expected Ada, got %q", u.DisplayName)
	}
	if _, err := r.Lookup(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepo_OpenResolvesAnyID(t *testing.T) {
	r := NewMemoryRepo()
	r.Open = true
	u, err := r.Lookup(context.Background(), "u9")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.ID != "u9" {
		t.Fatalf("expected u9, got %q", u.ID)
	}
	if _, err := r.Lookup(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected empty id to be unresolvable, got %v", err)
	}
}

func TestMemoryRepo_BlockIsSymmetric(t *testing.T) {
	r := NewMemoryRepo()
	r.Block("u1", "u2")

	for _, pair := range [][2]string{{"u1", "u2"}, {"u2", "u1"}} {
		ok, err := r.CanCommunicate(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("can communicate: %v", err)
		}
		if ok {
			t.Fatalf("expected %s and %s to be blocked", pair[0], pair[1])
		}
	}

	ok, _ := r.CanCommunicate(context.Background(), "u1", "u3")
	if !ok {
		t.Fatalf("expected unrelated users to communicate")
	}
}
