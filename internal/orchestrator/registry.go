package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voicecall-platform/internal/journal"
	"voicecall-platform/internal/media"
	"voicecall-platform/internal/session"
	"voicecall-platform/internal/signaling"
	"voicecall-platform/internal/store"
)

// Registry materializes one orchestrator per user, lazily. Inbound push
// deliveries for a user the process has not seen yet still get an
// orchestrator, which then rehydrates the call purely from the store.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*Orchestrator
	deps    RegistryDeps
}

type RegistryDeps struct {
	Store   store.Store
	Signals signaling.Sender
	Broker  TokenFetcher
	Journal *journal.Service
	Archive Archiver // optional

	// NewRelay builds the per-device media engine handle.
	NewRelay func() media.Relay

	Log   *slog.Logger
	Clock func() time.Time
}

func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Store == nil || deps.Signals == nil || deps.Broker == nil {
		return nil, errors.New("orchestrator: registry requires store, signals and broker")
	}
	if deps.NewRelay == nil {
		return nil, errors.New("orchestrator: registry requires a relay factory")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Registry{devices: make(map[string]*Orchestrator), deps: deps}, nil
}

// ForUser returns the user's orchestrator, creating it on first use. A
// non-empty display name refreshes the name used on outbound invites.
func (r *Registry) ForUser(id session.Identity) (*Orchestrator, error) {
	if id.ID == "" {
		return nil, ErrInvalidTarget
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.devices[id.ID]; ok {
		// A device first materialized by an inbound push has no display name
		// until its user shows up authenticated.
		o.UpdateDisplayName(id.Name)
		return o, nil
	}
	o, err := New(id, Deps{
		Store:   r.deps.Store,
		Signals: r.deps.Signals,
		Broker:  r.deps.Broker,
		Relay:   r.deps.NewRelay(),
		Journal: r.deps.Journal,
		Archive: r.deps.Archive,
		Log:     r.deps.Log.With("user_id", id.ID),
		Clock:   r.deps.Clock,
	})
	if err != nil {
		return nil, err
	}
	r.devices[id.ID] = o
	return o, nil
}

// Deliver implements signaling.Dispatcher: it routes one push to the target
// user's orchestrator.
func (r *Registry) Deliver(ctx context.Context, to string, ev signaling.Event) error {
	o, err := r.ForUser(session.Identity{ID: to})
	if err != nil {
		return err
	}
	return o.HandleInboundSignal(ctx, ev)
}

// Close shuts down every orchestrator.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.devices {
		o.Close()
	}
	r.devices = make(map[string]*Orchestrator)
}
