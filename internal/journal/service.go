package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for journal entries.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Entry) error
}

// Service records call lifecycle events. Callers treat it as best-effort: a
// failed append is logged by the caller, never propagated into call flow.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEntry = errors.New("journal: invalid entry")

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("journal: repository not configured")
	}
	if e.CallID == "" || e.UserID == "" {
		return ErrInvalidEntry
	}
	if e.Type == "" {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// SignalApplied records an inbound signal that produced a local effect.
func (s *Service) SignalApplied(ctx context.Context, callID, userID, signal, message string) error {
	return s.Append(ctx, Entry{CallID: callID, UserID: userID, Type: EntrySignalApplied, Signal: signal, Message: message})
}

// SignalDropped records a duplicate, stale or otherwise ignored signal.
func (s *Service) SignalDropped(ctx context.Context, callID, userID, signal, message string) error {
	return s.Append(ctx, Entry{CallID: callID, UserID: userID, Type: EntrySignalDropped, Signal: signal, Message: message})
}

// Transition records a local status change.
func (s *Service) Transition(ctx context.Context, callID, userID, from, to, message string) error {
	return s.Append(ctx, Entry{CallID: callID, UserID: userID, Type: EntryTransition, FromStatus: from, ToStatus: to, Message: message})
}

// StoreConflict records a regressive transition discarded after a store re-read.
func (s *Service) StoreConflict(ctx context.Context, callID, userID, message string) error {
	return s.Append(ctx, Entry{CallID: callID, UserID: userID, Type: EntryStoreConflict, Message: message})
}
