package signaling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"voicecall-platform/internal/session"
)

func TestDecode_RoundTrip(t *testing.T) {
	raw := []byte(`{"type":"invite","call_id":"c1","channel_id":"c1","caller_id":"u1","caller_name":"Ann","callee_id":"u2","timestamp":1700000000000}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventInvite || ev.CallID != "c1" || ev.CallerName != "Ann" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestDecode_RejectsUnknownTypeAndMissingFields(t *testing.T) {
	cases := []string{
		`{"type":"ring","call_id":"c1","caller_id":"u1","callee_id":"u2"}`,
		`{"type":"invite","caller_id":"u1","callee_id":"u2"}`,
		`{"type":"invite","call_id":"c1","callee_id":"u2"}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("expected ErrMalformedEvent for %s, got %v", raw, err)
		}
	}
}

func TestNewEvent_CarriesSessionFields(t *testing.T) {
	now := time.Unix(1700000000, 0)
	sess := session.New("c1", session.Identity{ID: "u1", Name: "Ann"}, session.Identity{ID: "u2"}, now)

	ev := NewEvent(EventAccept, sess, now)
	if ev.Type != EventAccept || ev.CallID != "c1" || ev.ChannelID != "c1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.CallerID != "u1" || ev.CalleeID != "u2" || ev.CallerName != "Ann" {
		t.Fatalf("unexpected identities: %+v", ev)
	}
	if ev.Timestamp != now.UnixMilli() {
		t.Fatalf("unexpected timestamp %d", ev.Timestamp)
	}
}

func TestEventSession_HydratesRinging(t *testing.T) {
	ev := Event{Type: EventInvite, CallID: "c1", ChannelID: "c1", CallerID: "u1", CallerName: "Ann", CalleeID: "u2"}
	s := ev.Session(time.Now())
	if s.Status != session.StatusRinging || s.ID != "c1" || s.CallerID != "u1" || s.CalleeID != "u2" {
		t.Fatalf("unexpected hydrated session: %+v", s)
	}
}

func TestLoopback_DeliversWithDuplicates(t *testing.T) {
	lb := NewLoopback()
	lb.Duplicates = 2

	var got atomic.Int32
	lb.Register("u2", func(ctx context.Context, ev Event) { got.Add(1) })

	ev := Event{Type: EventInvite, CallID: "c1", CallerID: "u1", CalleeID: "u2"}
	if err := lb.Send(context.Background(), "u2", ev); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Dispatch is asynchronous; wait for all copies to land.
	deadline := time.Now().Add(2 * time.Second)
	for got.Load() != 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := got.Load(); n != 3 {
		t.Fatalf("expected 3 deliveries, got %d", n)
	}

	// Unknown target: dropped without error, like real push infra.
	if err := lb.Send(context.Background(), "nobody", ev); err != nil {
		t.Fatalf("send to unknown target: %v", err)
	}
}
