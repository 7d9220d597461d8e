package session

import "time"

// CallSession is the shared record describing one two-party call attempt.
//
// Ownership: the record is logically owned by both participants; either side may
// write a status transition. Every value read from the store is treated as an
// authoritative snapshot, never as a delta, so last-write-wins at the store is
// acceptable.
//
// Invariants:
// - Status moves only forward: ringing -> connected -> ended, or ringing -> missed.
// - ConnectedAt is set iff the call has ever been connected.
// - EndedAt is set iff the call is terminal, and exactly once.
// - ChannelID equals ID (one media channel per call).

type CallSession struct {
	ID        string `json:"call_id" db:"call_id"`
	ChannelID string `json:"channel_id" db:"channel_id"`

	CallerID   string `json:"caller_id" db:"caller_id"`
	CallerName string `json:"caller_name,omitempty" db:"caller_name"`
	CalleeID   string `json:"callee_id" db:"callee_id"`
	CalleeName string `json:"callee_name,omitempty" db:"callee_name"`

	Status Status `json:"status" db:"status"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is derived at termination; 0 if the call never connected.
	DurationSeconds int `json:"duration" db:"duration"`
}

type Status string

const (
	StatusRinging   Status = "ringing"
	StatusConnected Status = "connected"
	StatusEnded     Status = "ended"
	StatusMissed    Status = "missed"
)

// Live reports whether the session still occupies a participant's single
// live-call slot.
func (s Status) Live() bool { return s == StatusRinging || s == StatusConnected }

func (s Status) Terminal() bool { return s == StatusEnded || s == StatusMissed }

// CanTransition reports whether moving from one status to another follows the
// state machine. Self-transitions are allowed so duplicate deliveries stay no-ops.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusRinging:
		return to == StatusConnected || to == StatusEnded || to == StatusMissed
	case StatusConnected:
		return to == StatusEnded
	default:
		return false
	}
}

// Identity is a stable participant identity plus its denormalized display name.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Role is a participant's position in one call. Keep values stable; they appear
// in journal records.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
	RoleNone   Role = ""
)

// New creates a ringing session. The channel id is the call id.
func New(id string, caller, callee Identity, now time.Time) CallSession {
	return CallSession{
		ID:         id,
		ChannelID:  id,
		CallerID:   caller.ID,
		CallerName: caller.Name,
		CalleeID:   callee.ID,
		CalleeName: callee.Name,
		Status:     StatusRinging,
		CreatedAt:  now.UTC(),
	}
}

func (c CallSession) Involves(userID string) bool {
	return userID != "" && (userID == c.CallerID || userID == c.CalleeID)
}

func (c CallSession) RoleOf(userID string) Role {
	switch userID {
	case c.CallerID:
		return RoleCaller
	case c.CalleeID:
		return RoleCallee
	default:
		return RoleNone
	}
}

// Participants returns the two-element participant set, caller first.
func (c CallSession) Participants() []string {
	return []string{c.CallerID, c.CalleeID}
}

// PeerOf returns the other participant's identity, or ok=false when userID is
// not a participant.
func (c CallSession) PeerOf(userID string) (Identity, bool) {
	switch userID {
	case c.CallerID:
		return Identity{ID: c.CalleeID, Name: c.CalleeName}, true
	case c.CalleeID:
		return Identity{ID: c.CallerID, Name: c.CallerName}, true
	default:
		return Identity{}, false
	}
}

// MarkConnected applies the ringing -> connected transition. It is a no-op on a
// session that is already connected.
func (c *CallSession) MarkConnected(now time.Time) bool {
	if c.Status == StatusConnected {
		return true
	}
	if !CanTransition(c.Status, StatusConnected) {
		return false
	}
	t := now.UTC()
	c.Status = StatusConnected
	c.ConnectedAt = &t
	return true
}

// MarkEnded applies the transition to ended, computing the duration from
// ConnectedAt. A never-connected call ends with duration 0.
func (c *CallSession) MarkEnded(now time.Time) bool {
	return c.finish(StatusEnded, now)
}

// MarkMissed applies ringing -> missed.
func (c *CallSession) MarkMissed(now time.Time) bool {
	if c.Status == StatusConnected {
		return false
	}
	return c.finish(StatusMissed, now)
}

func (c *CallSession) finish(to Status, now time.Time) bool {
	if c.Status == to {
		return true
	}
	if !CanTransition(c.Status, to) {
		return false
	}
	t := now.UTC()
	c.Status = to
	c.EndedAt = &t
	if c.ConnectedAt != nil {
		// Whole seconds, rounded down.
		c.DurationSeconds = int(t.Sub(*c.ConnectedAt) / time.Second)
		if c.DurationSeconds < 0 {
			c.DurationSeconds = 0
		}
	}
	return true
}
