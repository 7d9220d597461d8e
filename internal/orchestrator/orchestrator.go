package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voicecall-platform/internal/journal"
	"voicecall-platform/internal/media"
	"voicecall-platform/internal/session"
	"voicecall-platform/internal/signaling"
	"voicecall-platform/internal/store"

	"github.com/google/uuid"
)

// TokenFetcher mints media tokens scoped to one (channel, uid) pair.
// Satisfied by broker.Client.
type TokenFetcher interface {
	FetchToken(ctx context.Context, channelID string, uid uint32) (string, error)
}

// Archiver stores terminal sessions in the call log. Satisfied by
// calllog.Service. Archiving is best-effort.
type Archiver interface {
	Archive(ctx context.Context, s session.CallSession) error
}

// Deps are the external collaborators of one device orchestrator.
type Deps struct {
	Store   store.Store
	Signals signaling.Sender
	Broker  TokenFetcher
	Relay   media.Relay
	Journal *journal.Service
	Archive Archiver // optional
	Log     *slog.Logger
	Clock   func() time.Time
}

// Orchestrator owns the single active-call slot of one device. User actions,
// inbound signaling events and store change-feed snapshots all enter through
// one serialized command channel; no two transitions run concurrently.
//
// Inbound signals are hints, not commands: before committing a transition that
// would move status backward, the durable store is re-read and its value wins.
// Terminal states never reopen.
type Orchestrator struct {
	self session.Identity
	deps Deps

	cmds chan func()
	done chan struct{}
	once sync.Once

	// State below is owned by the run loop and must only be touched there.
	active      *session.CallSession
	token       string
	uid         uint32
	joined      bool
	muted       bool
	speakerOn   bool
	watchCancel context.CancelFunc
}

func New(self session.Identity, deps Deps) (*Orchestrator, error) {
	if self.ID == "" {
		return nil, ErrInvalidTarget
	}
	if deps.Store == nil || deps.Signals == nil || deps.Broker == nil || deps.Relay == nil {
		return nil, fmt.Errorf("orchestrator: store, signals, broker and relay are required")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if err := deps.Relay.Initialize(); err != nil {
		return nil, fmt.Errorf("orchestrator: relay init: %w", err)
	}

	o := &Orchestrator{
		self: self,
		deps: deps,
		cmds: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go o.run()
	return o, nil
}

func (o *Orchestrator) run() {
	for {
		select {
		case <-o.done:
			return
		case cmd := <-o.cmds:
			cmd()
		}
	}
}

// Close stops the event loop and releases the media engine handle.
func (o *Orchestrator) Close() {
	o.once.Do(func() {
		close(o.done)
		_ = o.deps.Relay.Release()
	})
}

// do runs fn on the serialized event path and waits for its result.
func (o *Orchestrator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	select {
	case o.cmds <- func() { errc <- fn(ctx) }:
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-o.done:
		return ErrClosed
	}
}

/* ===================== USER INTENTS ===================== */

// StartCall creates a new ringing session toward target and invites it.
// Effect order matters: token fetch, then record write, then invite. A failure
// at any step rolls everything back to none.
func (o *Orchestrator) StartCall(ctx context.Context, target session.Identity) (session.CallSession, error) {
	if target.ID == "" || target.ID == o.self.ID {
		return session.CallSession{}, ErrInvalidTarget
	}

	var out session.CallSession
	err := o.do(ctx, func(ctx context.Context) error {
		if o.active != nil {
			return ErrAlreadyInCall
		}

		callID := uuid.NewString()

		claimed, err := o.deps.Store.ClaimLive(ctx, o.self.ID, callID)
		if err != nil {
			return fmt.Errorf("%w: live slot claim: %v", ErrStoreWriteFailed, err)
		}
		if !claimed {
			// Another device of this user already holds a live call.
			return ErrAlreadyInCall
		}

		uid := media.DeriveUID(o.self.ID)
		token, err := o.deps.Broker.FetchToken(ctx, callID, uid)
		if err != nil {
			o.releaseLive(callID)
			return fmt.Errorf("%w: %v", ErrTokenFetchFailed, err)
		}

		now := o.deps.Clock()
		sess := session.New(callID, o.self, target, now)
		if err := o.deps.Store.Put(ctx, sess); err != nil {
			o.releaseLive(callID)
			return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
		}

		// The record exists; from here the invite is best-effort. The callee
		// can always discover the call from the store.
		o.sendSignal(ctx, target.ID, signaling.NewEvent(signaling.EventInvite, sess, now))

		o.setActive(sess, token, uid)
		o.journalTransition(ctx, sess.ID, "", sess.Status, "call started")
		out = sess
		return nil
	})
	return out, err
}

// AcceptActiveCall connects a ringing call. Callee only.
func (o *Orchestrator) AcceptActiveCall(ctx context.Context) error {
	return o.do(ctx, func(ctx context.Context) error {
		if o.active == nil || o.active.Status != session.StatusRinging {
			return ErrNoActiveCall
		}
		if o.active.RoleOf(o.self.ID) != session.RoleCallee {
			// Role mismatch: only the callee may accept. State unchanged.
			o.journalDrop(ctx, o.active.ID, "accept", "rejected: local user is not the callee")
			return ErrNoActiveCall
		}

		uid := media.DeriveUID(o.self.ID)
		token, err := o.deps.Broker.FetchToken(ctx, o.active.ChannelID, uid)
		if err != nil {
			// Roll back: the call stays ringing.
			return fmt.Errorf("%w: %v", ErrTokenFetchFailed, err)
		}

		// The caller may have cancelled while we were fetching the token. The
		// store is authoritative; a terminal record means the accept loses.
		rec, ok, err := o.deps.Store.Get(ctx, o.active.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
		}
		if ok && rec.Status.Terminal() {
			o.journalConflict(ctx, o.active.ID, "accept discarded: record already "+string(rec.Status))
			o.finalize(ctx, rec, "terminal before accept")
			return ErrNoActiveCall
		}
		if !ok {
			rec = *o.active
		}

		now := o.deps.Clock()
		if !rec.MarkConnected(now) {
			return ErrNoActiveCall
		}
		if err := o.deps.Store.Put(ctx, rec); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
		}

		o.sendSignal(ctx, rec.CallerID, signaling.NewEvent(signaling.EventAccept, rec, now))

		o.active = &rec
		o.token = token
		o.uid = uid
		o.journalTransition(ctx, rec.ID, string(session.StatusRinging), rec.Status, "call accepted")
		o.joinRelay(ctx)
		return nil
	})
}

// DeclineActiveCall rejects a ringing call. Callee only; the record becomes
// missed.
func (o *Orchestrator) DeclineActiveCall(ctx context.Context) error {
	return o.do(ctx, func(ctx context.Context) error {
		if o.active == nil || o.active.Status != session.StatusRinging {
			return ErrNoActiveCall
		}
		if o.active.RoleOf(o.self.ID) != session.RoleCallee {
			return ErrNoActiveCall
		}

		rec, ok, err := o.deps.Store.Get(ctx, o.active.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
		}
		if !ok {
			rec = *o.active
		}
		if rec.Status.Terminal() {
			// Caller got there first; nothing left to decline.
			o.finalize(ctx, rec, "terminal before decline")
			return nil
		}
		if rec.Status == session.StatusConnected {
			// Another device of this user accepted. Declining now would be a
			// backward transition; discard it.
			o.journalConflict(ctx, rec.ID, "decline discarded: record already connected")
			o.adoptConnected(ctx, rec)
			return ErrNoActiveCall
		}

		now := o.deps.Clock()
		if !rec.MarkMissed(now) {
			return ErrNoActiveCall
		}
		if err := o.deps.Store.Put(ctx, rec); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
		}
		o.sendSignal(ctx, rec.CallerID, signaling.NewEvent(signaling.EventCancel, rec, now))
		o.finalize(ctx, rec, "declined")
		return nil
	})
}

// EndActiveCall terminates the active call. A connected call ends with its
// duration recorded; an unanswered ringing call may only be ended by the
// caller and ends with duration 0 (status ended, not missed).
func (o *Orchestrator) EndActiveCall(ctx context.Context) error {
	return o.do(ctx, func(ctx context.Context) error {
		if o.active == nil {
			return ErrNoActiveCall
		}
		switch o.active.Status {
		case session.StatusConnected:
			// fine
		case session.StatusRinging:
			if o.active.RoleOf(o.self.ID) != session.RoleCaller {
				return ErrNoActiveCall
			}
		default:
			return ErrNoActiveCall
		}

		rec, ok, err := o.deps.Store.Get(ctx, o.active.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
		}
		if !ok {
			rec = *o.active
		}
		if rec.Status.Terminal() {
			o.finalize(ctx, rec, "terminal before end")
			return nil
		}

		now := o.deps.Clock()
		if !rec.MarkEnded(now) {
			return ErrNoActiveCall
		}
		if err := o.deps.Store.Put(ctx, rec); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
		}

		peer, _ := rec.PeerOf(o.self.ID)
		evType := signaling.EventEnd
		if rec.ConnectedAt == nil {
			// Unanswered call: the peer is still ringing and expects cancel.
			evType = signaling.EventCancel
		}
		o.sendSignal(ctx, peer.ID, signaling.NewEvent(evType, rec, now))
		o.finalize(ctx, rec, "ended locally")
		return nil
	})
}

// JoinMediaChannel joins the relay channel of the active call. It requires a
// fetched token and a derived uid; both exist whenever startCall or accept
// completed.
func (o *Orchestrator) JoinMediaChannel(ctx context.Context) error {
	return o.do(ctx, func(ctx context.Context) error {
		if o.active == nil {
			return ErrNoActiveCall
		}
		if o.token == "" {
			return ErrMissingSessionCredentials
		}
		if err := o.deps.Relay.JoinChannel(ctx, o.active.ChannelID, o.uid, o.token); err != nil {
			return fmt.Errorf("orchestrator: relay join: %w", err)
		}
		o.joined = true
		return nil
	})
}

// ToggleMute flips the local mute flag. Local-only: no signaling, no store.
func (o *Orchestrator) ToggleMute(ctx context.Context) (bool, error) {
	var out bool
	err := o.do(ctx, func(ctx context.Context) error {
		if o.active == nil {
			return ErrNoActiveCall
		}
		o.muted = !o.muted
		if err := o.deps.Relay.MuteLocalAudio(o.muted); err != nil {
			o.deps.Log.Warn("relay mute failed", "call_id", o.active.ID, "err", err)
		}
		out = o.muted
		return nil
	})
	return out, err
}

// ToggleSpeaker flips the speakerphone flag. Local-only.
func (o *Orchestrator) ToggleSpeaker(ctx context.Context) (bool, error) {
	var out bool
	err := o.do(ctx, func(ctx context.Context) error {
		if o.active == nil {
			return ErrNoActiveCall
		}
		o.speakerOn = !o.speakerOn
		if err := o.deps.Relay.EnableSpeakerphone(o.speakerOn); err != nil {
			o.deps.Log.Warn("relay speaker toggle failed", "call_id", o.active.ID, "err", err)
		}
		out = o.speakerOn
		return nil
	})
	return out, err
}

// UpdateDisplayName replaces the name stamped on outbound invites. Applied on
// the event loop; a call already ringing keeps the name it was created with.
func (o *Orchestrator) UpdateDisplayName(name string) {
	if name == "" {
		return
	}
	select {
	case o.cmds <- func() { o.self.Name = name }:
	case <-o.done:
	}
}

// ActiveCall returns a snapshot of the active session, ok=false when none.
func (o *Orchestrator) ActiveCall(ctx context.Context) (session.CallSession, bool, error) {
	var out session.CallSession
	var ok bool
	err := o.do(ctx, func(ctx context.Context) error {
		if o.active != nil {
			out = *o.active
			ok = true
		}
		return nil
	})
	return out, ok, err
}

/* ===================== INBOUND SIGNALS ===================== */

// HandleInboundSignal routes one push-delivered event through the state
// machine. Unknown call ids with no store match are dropped silently; duplicate
// deliveries are no-ops.
func (o *Orchestrator) HandleInboundSignal(ctx context.Context, ev signaling.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return o.do(ctx, func(ctx context.Context) error {
		o.handleSignal(ctx, ev)
		return nil
	})
}

func (o *Orchestrator) handleSignal(ctx context.Context, ev signaling.Event) {
	// No local reference: try to reconstruct from the durable store (covers a
	// device resumed from a killed state) or, for invites only, from payload.
	if o.active == nil {
		if !o.hydrate(ctx, ev) {
			return
		}
	}
	if o.active.ID != ev.CallID {
		if ev.Type == signaling.EventInvite {
			o.journalDrop(ctx, ev.CallID, string(ev.Type), "busy with another call")
		} else {
			o.journalDrop(ctx, ev.CallID, string(ev.Type), "stale signal for unknown call")
		}
		return
	}

	switch ev.Type {
	case signaling.EventInvite:
		// Already tracking this call; replayed push.
		o.journalDrop(ctx, ev.CallID, "invite", "duplicate invite")

	case signaling.EventAccept:
		o.onAcceptSignal(ctx, ev)

	case signaling.EventCancel:
		o.onTerminalSignal(ctx, ev, session.StatusMissed)

	case signaling.EventEnd:
		o.onTerminalSignal(ctx, ev, session.StatusEnded)
	}
}

// hydrate reconstructs local state for a signal that arrived without one.
// Returns false when the signal should be dropped.
func (o *Orchestrator) hydrate(ctx context.Context, ev signaling.Event) bool {
	rec, ok, err := o.deps.Store.Get(ctx, ev.CallID)
	if err != nil {
		o.deps.Log.Warn("store read during hydration failed", "call_id", ev.CallID, "err", err)
		return false
	}
	if ok && rec.Status.Terminal() {
		o.journalDrop(ctx, ev.CallID, string(ev.Type), "stale signal for finished call")
		return false
	}
	if !ok {
		if ev.Type != signaling.EventInvite {
			// Unknown call id with no store match: stale or duplicate.
			return false
		}
		rec = ev.Session(o.deps.Clock())
	}
	if !rec.Involves(o.self.ID) {
		o.journalDrop(ctx, ev.CallID, string(ev.Type), "signal for a call not involving this user")
		return false
	}

	claimed, err := o.deps.Store.ClaimLive(ctx, o.self.ID, rec.ID)
	if err != nil || !claimed {
		o.journalDrop(ctx, ev.CallID, string(ev.Type), "live slot held by another call")
		return false
	}

	o.setActive(rec, "", 0)
	o.journalTransition(ctx, rec.ID, "", rec.Status, "hydrated from "+hydrationSource(ok))
	return true
}

func hydrationSource(fromStore bool) string {
	if fromStore {
		return "store"
	}
	return "invite payload"
}

func (o *Orchestrator) onAcceptSignal(ctx context.Context, ev signaling.Event) {
	if o.active.Status == session.StatusConnected {
		o.journalDrop(ctx, ev.CallID, "accept", "duplicate accept")
		return
	}
	if o.active.RoleOf(o.self.ID) != session.RoleCaller {
		// Accept is only meaningful on the caller side.
		o.journalDrop(ctx, ev.CallID, "accept", "accept received by non-caller")
		return
	}

	// The callee persisted connected before signaling; prefer its snapshot so
	// connectedAt is set exactly once across both peers.
	rec, ok, err := o.deps.Store.Get(ctx, ev.CallID)
	if err != nil || !ok {
		rec = *o.active
	}
	if rec.Status.Terminal() {
		o.finalize(ctx, rec, "terminal while accepting")
		return
	}
	if rec.Status != session.StatusConnected {
		// Store write still in flight; apply locally, the feed will reconcile.
		rec.MarkConnected(o.deps.Clock())
	}
	o.journalApplied(ctx, ev.CallID, "accept", "peer accepted")
	o.adoptConnected(ctx, rec)
}

// onTerminalSignal handles cancel/end. The implied transition can move status
// backward (cancel after connect), so the store is re-read and wins.
func (o *Orchestrator) onTerminalSignal(ctx context.Context, ev signaling.Event, implied session.Status) {
	local := o.active.Status

	rec, ok, err := o.deps.Store.Get(ctx, ev.CallID)
	if err != nil {
		o.deps.Log.Warn("store read failed handling terminal signal", "call_id", ev.CallID, "err", err)
		return
	}
	if !ok {
		rec = *o.active
	}

	if rec.Status.Terminal() {
		o.journalApplied(ctx, ev.CallID, string(ev.Type), "adopting terminal record")
		o.finalize(ctx, rec, "peer terminated")
		return
	}

	if rec.Status == session.StatusConnected && implied == session.StatusMissed {
		// Accept and cancel crossed in flight; the persisted connect wins.
		o.journalConflict(ctx, ev.CallID, "cancel discarded: record already connected")
		o.adoptConnected(ctx, rec)
		return
	}

	now := o.deps.Clock()
	applied := false
	if implied == session.StatusMissed {
		applied = rec.MarkMissed(now)
	} else {
		applied = rec.MarkEnded(now)
	}
	if !applied {
		o.journalDrop(ctx, ev.CallID, string(ev.Type), "transition not applicable from "+string(local))
		return
	}
	if err := o.deps.Store.Put(ctx, rec); err != nil {
		o.deps.Log.Warn("terminal record write failed", "call_id", ev.CallID, "err", err)
	}
	o.journalApplied(ctx, ev.CallID, string(ev.Type), "peer terminated")
	o.finalize(ctx, rec, "peer terminated")
}

/* ===================== STORE FEED ===================== */

func (o *Orchestrator) startWatch(callID string) {
	watchCtx, cancel := context.WithCancel(context.Background())
	o.watchCancel = cancel

	feed, err := o.deps.Store.Watch(watchCtx, callID)
	if err != nil {
		o.deps.Log.Warn("store watch failed", "call_id", callID, "err", err)
		cancel()
		o.watchCancel = nil
		return
	}
	go func() {
		for rec := range feed {
			rec := rec
			select {
			case o.cmds <- func() { o.onStoreChange(context.Background(), rec) }:
			case <-o.done:
				return
			}
		}
	}()
}

func (o *Orchestrator) stopWatch() {
	if o.watchCancel != nil {
		o.watchCancel()
		o.watchCancel = nil
	}
}

// onStoreChange applies an authoritative snapshot from the change feed.
func (o *Orchestrator) onStoreChange(ctx context.Context, rec session.CallSession) {
	if o.active == nil || o.active.ID != rec.ID {
		return
	}
	switch {
	case rec.Status.Terminal():
		o.finalize(ctx, rec, "record reached "+string(rec.Status))
	case rec.Status == session.StatusConnected && o.active.Status == session.StatusRinging:
		o.journalApplied(ctx, rec.ID, "store", "record connected")
		o.adoptConnected(ctx, rec)
	default:
		if !session.CanTransition(o.active.Status, rec.Status) {
			// The feed may re-deliver old snapshots; a regressive one is stale.
			o.journalConflict(ctx, rec.ID, "feed snapshot discarded: would regress "+string(o.active.Status)+" to "+string(rec.Status))
			return
		}
		// Same status or our own write echoing back.
		*o.active = rec
	}
}

/* ===================== SHARED TRANSITION HELPERS ===================== */

// adoptConnected moves the local call to connected and joins the relay. On the
// caller side the token was fetched at startCall; a rehydrated device fetches
// it here instead.
func (o *Orchestrator) adoptConnected(ctx context.Context, rec session.CallSession) {
	from := o.active.Status
	*o.active = rec
	if from != rec.Status {
		o.journalTransition(ctx, rec.ID, string(from), rec.Status, "connected")
	}
	if o.token == "" {
		uid := media.DeriveUID(o.self.ID)
		token, err := o.deps.Broker.FetchToken(ctx, rec.ChannelID, uid)
		if err != nil {
			o.deps.Log.Error("token fetch for connected call failed", "call_id", rec.ID, "err", err)
			return
		}
		o.token = token
		o.uid = uid
	}
	o.joinRelay(ctx)
}

func (o *Orchestrator) joinRelay(ctx context.Context) {
	if o.joined {
		return
	}
	if err := o.deps.Relay.JoinChannel(ctx, o.active.ChannelID, o.uid, o.token); err != nil {
		// The call stays connected; JoinMediaChannel is the retry path.
		o.deps.Log.Error("relay join failed", "call_id", o.active.ID, "err", err)
		return
	}
	o.joined = true
}

// finalize releases every per-call resource and returns the device to none.
func (o *Orchestrator) finalize(ctx context.Context, rec session.CallSession, reason string) {
	if o.joined {
		if err := o.deps.Relay.LeaveChannel(ctx); err != nil {
			o.deps.Log.Warn("relay leave failed", "call_id", rec.ID, "err", err)
		}
	}
	if o.active != nil {
		o.journalTransition(ctx, rec.ID, string(o.active.Status), rec.Status, reason)
	}
	if o.deps.Archive != nil && rec.Status.Terminal() {
		if err := o.deps.Archive.Archive(ctx, rec); err != nil {
			o.deps.Log.Warn("call archive failed", "call_id", rec.ID, "err", err)
		}
	}
	o.releaseLive(rec.ID)
	o.stopWatch()
	o.active = nil
	o.token = ""
	o.uid = 0
	o.joined = false
	o.muted = false
	o.speakerOn = false
}

func (o *Orchestrator) setActive(rec session.CallSession, token string, uid uint32) {
	cp := rec
	o.active = &cp
	o.token = token
	o.uid = uid
	o.joined = false
	o.muted = false
	o.speakerOn = false
	o.startWatch(rec.ID)
}

func (o *Orchestrator) releaseLive(callID string) {
	// Release must not inherit a cancelled request context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.Store.ReleaseLive(ctx, o.self.ID, callID); err != nil {
		o.deps.Log.Warn("live slot release failed", "call_id", callID, "err", err)
	}
}

func (o *Orchestrator) sendSignal(ctx context.Context, to string, ev signaling.Event) {
	if err := o.deps.Signals.Send(ctx, to, ev); err != nil {
		// Best-effort: the store is the source of truth and the peer
		// reconciles from it.
		o.deps.Log.Warn("signal send failed", "call_id", ev.CallID, "type", ev.Type, "err", err)
	}
}

/* ===================== JOURNAL (BEST-EFFORT) ===================== */

func (o *Orchestrator) journalTransition(ctx context.Context, callID, from string, to session.Status, msg string) {
	if o.deps.Journal == nil {
		return
	}
	if err := o.deps.Journal.Transition(ctx, callID, o.self.ID, from, string(to), msg); err != nil {
		o.deps.Log.Debug("journal append failed", "call_id", callID, "err", err)
	}
}

func (o *Orchestrator) journalApplied(ctx context.Context, callID, signal, msg string) {
	if o.deps.Journal == nil {
		return
	}
	if err := o.deps.Journal.SignalApplied(ctx, callID, o.self.ID, signal, msg); err != nil {
		o.deps.Log.Debug("journal append failed", "call_id", callID, "err", err)
	}
}

func (o *Orchestrator) journalDrop(ctx context.Context, callID, signal, msg string) {
	if o.deps.Journal == nil {
		return
	}
	if err := o.deps.Journal.SignalDropped(ctx, callID, o.self.ID, signal, msg); err != nil {
		o.deps.Log.Debug("journal append failed", "call_id", callID, "err", err)
	}
}

func (o *Orchestrator) journalConflict(ctx context.Context, callID, msg string) {
	if o.deps.Journal == nil {
		return
	}
	if err := o.deps.Journal.StoreConflict(ctx, callID, o.self.ID, msg); err != nil {
		o.deps.Log.Debug("journal append failed", "call_id", callID, "err", err)
	}
}
