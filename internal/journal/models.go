package journal

import "time"

// Entry is an immutable, append-only record of one call lifecycle event on one
// device. The signaling transport is unordered and at-least-once, so the
// journal is the primary tool for reconstructing what a device actually saw.
//
// Invariants:
// - Entries are never updated or deleted.
// - Journaling is best-effort; call flow must never block on journal failures.

type Entry struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// UserID is the local participant whose orchestrator recorded the entry.
	UserID string `json:"user_id" db:"user_id"`

	Type EntryType `json:"type" db:"type"`

	// Signal holds the inbound signal type for signal-related entries.
	Signal string `json:"signal,omitempty" db:"signal"`

	// FromStatus/ToStatus capture the local transition for transition entries.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Message is a short human-readable note for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntrySignalApplied EntryType = "signal_applied"
	EntrySignalDropped EntryType = "signal_dropped"
	EntryTransition    EntryType = "transition"
	EntryStoreConflict EntryType = "store_conflict"
)
