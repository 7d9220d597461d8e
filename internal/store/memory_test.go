package store

import (
	"context"
	"testing"
	"time"

	"voicecall-platform/internal/session"
)

func TestMemoryStore_PutGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	rec := session.New("call-1", session.Identity{ID: "u1"}, session.Identity{ID: "u2"}, time.Now())
	if err := m.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := m.Get(ctx, "call-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != session.StatusRinging {
		t.Fatalf("expected ringing, got %q", got.Status)
	}

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Fatalf("expected no record")
	}
}

func TestMemoryStore_WatchDeliversSnapshots(t *testing.T) {
	m := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := m.Watch(ctx, "call-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	rec := session.New("call-1", session.Identity{ID: "u1"}, session.Identity{ID: "u2"}, time.Now())
	rec.MarkConnected(time.Now())
	if err := m.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	select {
	case got := <-feed:
		if got.Status != session.StatusConnected {
			t.Fatalf("expected connected snapshot, got %q", got.Status)
		}
	case <-time.After(time.Second):
		t.Fatalf("watch delivered nothing")
	}

	cancel()
	select {
	case _, open := <-feed:
		if open {
			t.Fatalf("expected feed closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("feed not closed after cancel")
	}
}

func TestMemoryStore_LiveClaim(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	ok, err := m.ClaimLive(ctx, "u1", "call-1")
	if err != nil || !ok {
		t.Fatalf("first claim should succeed: ok=%v err=%v", ok, err)
	}
	// Renewal by the same call succeeds.
	if ok, _ := m.ClaimLive(ctx, "u1", "call-1"); !ok {
		t.Fatalf("re-claim for the same call must succeed")
	}
	// A second live call for the same user is refused.
	if ok, _ := m.ClaimLive(ctx, "u1", "call-2"); ok {
		t.Fatalf("second live call must be refused")
	}
	// Release by a non-holder is a no-op.
	if err := m.ReleaseLive(ctx, "u1", "call-2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := m.ClaimLive(ctx, "u1", "call-2"); ok {
		t.Fatalf("slot must still be held after non-holder release")
	}
	if err := m.ReleaseLive(ctx, "u1", "call-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := m.ClaimLive(ctx, "u1", "call-2"); !ok {
		t.Fatalf("slot must be free after holder release")
	}
}
