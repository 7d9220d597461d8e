package calllog

import (
	"context"
	"database/sql"
	"time"

	"voicecall-platform/internal/session"
)

// NOTE: This repository assumes the following table exists:
//
//   CREATE TABLE call_log (
//     call_id      TEXT PRIMARY KEY,
//     channel_id   TEXT NOT NULL,
//     caller_id    TEXT NOT NULL,
//     caller_name  TEXT NOT NULL DEFAULT '',
//     callee_id    TEXT NOT NULL,
//     callee_name  TEXT NOT NULL DEFAULT '',
//     status       TEXT NOT NULL,
//     created_at   TIMESTAMPTZ NOT NULL,
//     connected_at TIMESTAMPTZ,
//     ended_at     TIMESTAMPTZ NOT NULL,
//     duration     INT NOT NULL DEFAULT 0,
//     archived_at  TIMESTAMPTZ NOT NULL
//   );
//
// The primary key on call_id gives archive idempotency.

func insertCallLog(ctx context.Context, tx *sql.Tx, s session.CallSession, archivedAt time.Time) error {
	const q = `
INSERT INTO call_log (
  call_id, channel_id, caller_id, caller_name, callee_id, callee_name,
  status, created_at, connected_at, ended_at, duration, archived_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (call_id) DO NOTHING
`
	_, err := tx.ExecContext(ctx, q,
		s.ID,
		s.ChannelID,
		s.CallerID,
		s.CallerName,
		s.CalleeID,
		s.CalleeName,
		string(s.Status),
		s.CreatedAt,
		s.ConnectedAt,
		s.EndedAt,
		s.DurationSeconds,
		archivedAt,
	)
	return err
}

func listCallLog(ctx context.Context, db *sql.DB, userID string, limit int) ([]session.CallSession, error) {
	const q = `
SELECT call_id, channel_id, caller_id, caller_name, callee_id, callee_name,
       status, created_at, connected_at, ended_at, duration
FROM call_log
WHERE caller_id = $1 OR callee_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.CallSession
	for rows.Next() {
		var s session.CallSession
		var status string
		if err := rows.Scan(
			&s.ID,
			&s.ChannelID,
			&s.CallerID,
			&s.CallerName,
			&s.CalleeID,
			&s.CalleeName,
			&status,
			&s.CreatedAt,
			&s.ConnectedAt,
			&s.EndedAt,
			&s.DurationSeconds,
		); err != nil {
			return nil, err
		}
		s.Status = session.Status(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func summarizeCallLog(ctx context.Context, db *sql.DB, userID string) (Summary, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'missed'),
       COALESCE(SUM(duration), 0)
FROM call_log
WHERE caller_id = $1 OR callee_id = $1
`
	s := Summary{UserID: userID}
	if err := db.QueryRowContext(ctx, q, userID).Scan(
		&s.TotalCalls,
		&s.MissedCalls,
		&s.TotalDurationSeconds,
	); err != nil {
		return Summary{}, err
	}
	return s, nil
}
