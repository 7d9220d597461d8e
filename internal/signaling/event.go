package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voicecall-platform/internal/session"
)

// Event is one call-control message carried over the push channel.
//
// The transport is best-effort, at-least-once and unordered. Treat every
// inbound event as an untrusted hint: handlers must be idempotent on call id
// and must reconcile against the durable store before committing expensive or
// irreversible effects.

type EventType string

const (
	EventInvite EventType = "invite"
	EventAccept EventType = "accept"
	EventCancel EventType = "cancel"
	EventEnd    EventType = "end"
)

func (t EventType) Valid() bool {
	switch t {
	case EventInvite, EventAccept, EventCancel, EventEnd:
		return true
	default:
		return false
	}
}

type Event struct {
	Type       EventType `json:"type"`
	CallID     string    `json:"call_id"`
	ChannelID  string    `json:"channel_id"`
	CallerID   string    `json:"caller_id"`
	CallerName string    `json:"caller_name,omitempty"`
	CalleeID   string    `json:"callee_id"`

	// Timestamp is the sender's clock in ms since epoch. Informational only;
	// ordering decisions are never based on it.
	Timestamp int64 `json:"timestamp"`
}

var ErrMalformedEvent = errors.New("signaling: malformed event")

func (e Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, e.Type)
	}
	if e.CallID == "" {
		return fmt.Errorf("%w: call_id is required", ErrMalformedEvent)
	}
	if e.CallerID == "" || e.CalleeID == "" {
		return fmt.Errorf("%w: caller_id and callee_id are required", ErrMalformedEvent)
	}
	return nil
}

// NewEvent builds an outbound event describing sess.
func NewEvent(t EventType, sess session.CallSession, now time.Time) Event {
	return Event{
		Type:       t,
		CallID:     sess.ID,
		ChannelID:  sess.ChannelID,
		CallerID:   sess.CallerID,
		CallerName: sess.CallerName,
		CalleeID:   sess.CalleeID,
		Timestamp:  now.UTC().UnixMilli(),
	}
}

// Session reconstructs a ringing session from an invite payload. Used only as
// a hydration fallback when the store has no record yet.
func (e Event) Session(now time.Time) session.CallSession {
	s := session.New(e.CallID, session.Identity{ID: e.CallerID, Name: e.CallerName}, session.Identity{ID: e.CalleeID}, now)
	if e.ChannelID != "" {
		s.ChannelID = e.ChannelID
	}
	return s
}

// Decode parses a raw push payload.
func Decode(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
