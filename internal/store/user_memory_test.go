package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testTTL = time.Hour

func TestMemoryUsersLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUsers()

	u := &User{Email: "Reader@Shop.Test", Pending: true}
	if err := s.Insert(ctx, u); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if u.ID.IsZero() {
		t.Fatal("expected an assigned id")
	}

	got, err := s.FindByEmail(ctx, "reader@shop.test")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.ID != u.ID || got.LoweredEmail != "reader@shop.test" {
		t.Errorf("unexpected user: %+v", got)
	}

	if _, err := s.FindByEmail(ctx, "nobody@shop.test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemoryUsersPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUsers()

	a := &User{Email: "a@shop.test", Pending: true}
	b := &User{Email: "b@shop.test"}
	for _, u := range []*User{a, b} {
		if err := s.Insert(ctx, u); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	pending, err := s.FindPending(ctx)
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Errorf("expected only a pending, got: %+v", pending)
	}

	if err := s.SetPending(ctx, b.ID, true); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	n, err := s.ClearAllPending(ctx)
	if err != nil {
		t.Fatalf("clear pending: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 cleared, got: %d", n)
	}

	pending, _ = s.FindPending(ctx)
	if len(pending) != 0 {
		t.Errorf("expected none pending, got: %+v", pending)
	}
}

func TestMemorySessionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessions(testTTL)

	if _, ok, err := s.Load(ctx, "absent"); err != nil || ok {
		t.Errorf("expected absent session, got ok=%v err=%v", ok, err)
	}

	data := SessionData{LoggedIn: true, Flash: []string{"hi"}}
	if err := s.Save(ctx, "s1", data); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.Load(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !got.LoggedIn || len(got.Flash) != 1 || got.Flash[0] != "hi" {
		t.Errorf("unexpected data: %+v", got)
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Load(ctx, "s1"); ok {
		t.Error("expected deleted session to be absent")
	}
}
