package store

import (
	"context"
	"errors"

	"voicecall-platform/internal/session"
)

// Store is the durable call record store: a shared document per call id,
// readable and writable by both peers, with per-key change notification.
//
// Conflict policy is last-write-wins; callers must treat every value read as an
// authoritative snapshot, not a delta. Records are never deleted (they remain
// as the call log source).
type Store interface {
	// Put writes the full session document keyed by its call id and notifies
	// watchers of that id.
	Put(ctx context.Context, s session.CallSession) error

	// Get reads the session document for callID. ok is false when absent.
	Get(ctx context.Context, callID string) (session.CallSession, bool, error)

	// Watch delivers authoritative snapshots written for callID until ctx is
	// done. The returned channel is closed when the watch stops. Snapshots may
	// be delivered more than once; consumers must be idempotent.
	Watch(ctx context.Context, callID string) (<-chan session.CallSession, error)

	// ClaimLive claims userID's single live-call slot for callID. It returns
	// false when another call already holds the slot. Re-claiming for the same
	// call renews the claim.
	ClaimLive(ctx context.Context, userID, callID string) (bool, error)

	// ReleaseLive releases the slot if it is held by callID.
	ReleaseLive(ctx context.Context, userID, callID string) error
}

var ErrInvalidRecord = errors.New("store: invalid call record")
