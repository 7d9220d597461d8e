package journal

import (
	"context"
	"testing"
)

func TestService_AppendRequiresCallUserAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Entry{Type: EntryTransition, UserID: "u"}); err == nil {
		t.Fatalf("expected error for missing call id")
	}
	if err := svc.Append(context.Background(), Entry{Type: EntryTransition, CallID: "c"}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if err := svc.Append(context.Background(), Entry{CallID: "c", UserID: "u"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestService_AppendsImmutableEntries(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Transition(context.Background(), "c1", "u1", "ringing", "connected", "accepted"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.SignalDropped(context.Background(), "c1", "u1", "invite", "duplicate delivery"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	entries := repo.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != EntryTransition || entries[0].ToStatus != "connected" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Type != EntrySignalDropped || entries[1].Signal != "invite" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled")
	}
}
