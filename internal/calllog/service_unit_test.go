package calllog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"voicecall-platform/internal/session"
)

// These are true unit tests for calllog.Service input validation behavior.
//
// Archive/History/Summarize run Postgres-specific SQL; end-to-end behavior
// (idempotent inserts, aggregates) is covered by integration tests against
// Postgres. What we can safely unit-test without a DB is the precondition
// checking: only terminal sessions with identities and an ended_at timestamp
// are archivable.

func TestArchive_RejectsNonTerminal(t *testing.T) {
	svc := NewService((*sql.DB)(nil))

	live := session.New("c1", session.Identity{ID: "u1"}, session.Identity{ID: "u2"}, time.Now())
	if err := svc.Archive(context.Background(), live); err != ErrNotTerminal {
		t.Fatalf("expected ErrNotTerminal, got %v", err)
	}

	live.MarkConnected(time.Now())
	if err := svc.Archive(context.Background(), live); err != ErrNotTerminal {
		t.Fatalf("expected ErrNotTerminal for connected, got %v", err)
	}
}

func TestArchive_RejectsInvalidArgs(t *testing.T) {
	svc := NewService((*sql.DB)(nil))

	ended := session.New("c1", session.Identity{ID: "u1"}, session.Identity{ID: "u2"}, time.Now())
	ended.MarkEnded(time.Now())

	missingID := ended
	missingID.ID = ""
	if err := svc.Archive(context.Background(), missingID); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	missingEnd := ended
	missingEnd.EndedAt = nil
	if err := svc.Archive(context.Background(), missingEnd); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for missing ended_at, got %v", err)
	}
}

func TestHistoryAndSummarize_RequireUser(t *testing.T) {
	svc := NewService((*sql.DB)(nil))

	if _, err := svc.History(context.Background(), "", 10); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Summarize(context.Background(), ""); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
