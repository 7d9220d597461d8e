package calllog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voicecall-platform/internal/session"
	"voicecall-platform/pkg/utils"
)

// Service archives terminal call sessions and serves per-user history.
//
// Invariants:
// - Only terminal sessions (ended/missed) are archived.
// - The archive is append-only and idempotent on call_id: re-archiving the same
//   terminal record (duplicate end signals, both peers archiving) is a no-op.
// - Live call state never lives here; the durable store owns it.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

var (
	ErrInvalidArgument = errors.New("calllog: invalid argument")
	ErrNotTerminal     = errors.New("calllog: session is not terminal")
)

// Summary aggregates a user's archived calls.
type Summary struct {
	UserID               string `json:"user_id"`
	TotalCalls           int    `json:"total_calls"`
	MissedCalls          int    `json:"missed_calls"`
	TotalDurationSeconds int64  `json:"total_duration_seconds"`
}

// Archive stores a terminal session.
func (s *Service) Archive(ctx context.Context, sess session.CallSession) error {
	if sess.ID == "" || sess.CallerID == "" || sess.CalleeID == "" {
		return ErrInvalidArgument
	}
	if !sess.Status.Terminal() {
		return ErrNotTerminal
	}
	if sess.EndedAt == nil {
		return ErrInvalidArgument
	}

	now := s.clock().UTC()
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return insertCallLog(ctx, tx, sess, now)
	})
}

// History returns a user's archived calls, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]session.CallSession, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return listCallLog(ctx, s.db, userID, limit)
}

// Summarize aggregates call counts and talk time for one user.
func (s *Service) Summarize(ctx context.Context, userID string) (Summary, error) {
	if userID == "" {
		return Summary{}, ErrInvalidArgument
	}
	return summarizeCallLog(ctx, s.db, userID)
}
