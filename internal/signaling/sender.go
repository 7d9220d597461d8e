package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Sender pushes one event toward a participant's devices. Delivery is
// best-effort: the push infrastructure may drop, duplicate or reorder.
type Sender interface {
	Send(ctx context.Context, to string, ev Event) error
}

// PushMessage is the gateway wire format: target identity plus the event.
type PushMessage struct {
	To    string `json:"to"`
	Event Event  `json:"event"`
}

const gatewaySecretHeader = "X-Push-Secret"

// HTTPSender forwards events to an external push gateway which fans out to the
// target user's devices. Errors are transport errors only; the gateway gives
// no delivery guarantee either way.
type HTTPSender struct {
	endpoint string
	secret   string
	httpc    *http.Client
}

func NewHTTPSender(endpoint, secret string, timeout time.Duration) (*HTTPSender, error) {
	if endpoint == "" {
		return nil, errors.New("signaling: push gateway endpoint is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSender{endpoint: endpoint, secret: secret, httpc: &http.Client{Timeout: timeout}}, nil
}

func (s *HTTPSender) Send(ctx context.Context, to string, ev Event) error {
	if to == "" {
		return errors.New("signaling: target identity is required")
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(PushMessage{To: to, Event: ev})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set(gatewaySecretHeader, s.secret)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("signaling: push request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("signaling: push gateway status %d", resp.StatusCode)
	}
	return nil
}

// Handler consumes events addressed to one participant.
type Handler func(ctx context.Context, ev Event)

// Loopback is an in-process Sender that dispatches to registered handlers on
// their own goroutines. Like the real push path, delivery is asynchronous and
// unordered. Used in tests to wire two orchestrators together; it can also
// duplicate deliveries to exercise at-least-once behavior.
type Loopback struct {
	mu       sync.Mutex
	handlers map[string]Handler

	// Duplicates controls how many extra copies of each event are delivered.
	Duplicates int
}

func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[string]Handler)}
}

func (l *Loopback) Register(identity string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[identity] = h
}

func (l *Loopback) Send(ctx context.Context, to string, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	h := l.handlers[to]
	dups := l.Duplicates
	l.mu.Unlock()
	if h == nil {
		// Push to an unknown/offline device is silently dropped by the
		// infrastructure; mirror that.
		return nil
	}
	for i := 0; i <= dups; i++ {
		go h(ctx, ev)
	}
	return nil
}
