package store

import (
	"context"
	"sync"

	"voicecall-platform/internal/session"
)

// MemoryStore is an in-memory Store useful for tests. It keeps last-write-wins
// semantics and fans every Put out to watchers of that call id. Not intended
// for production use.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]session.CallSession
	watchers map[string][]chan session.CallSession
	live     map[string]string // userID -> callID holding the slot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]session.CallSession),
		watchers: make(map[string][]chan session.CallSession),
		live:     make(map[string]string),
	}
}

func (m *MemoryStore) Put(ctx context.Context, rec session.CallSession) error {
	if rec.ID == "" {
		return ErrInvalidRecord
	}
	m.mu.Lock()
	m.records[rec.ID] = rec
	targets := append([]chan session.CallSession(nil), m.watchers[rec.ID]...)
	m.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- rec:
		default:
			// Slow watcher; it will reconcile via Get.
		}
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, callID string) (session.CallSession, bool, error) {
	if callID == "" {
		return session.CallSession{}, false, ErrInvalidRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[callID]
	return rec, ok, nil
}

func (m *MemoryStore) Watch(ctx context.Context, callID string) (<-chan session.CallSession, error) {
	if callID == "" {
		return nil, ErrInvalidRecord
	}
	ch := make(chan session.CallSession, 8)
	m.mu.Lock()
	m.watchers[callID] = append(m.watchers[callID], ch)
	m.mu.Unlock()

	out := make(chan session.CallSession, 8)
	go func() {
		defer close(out)
		defer m.removeWatcher(callID, ch)
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-ch:
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *MemoryStore) removeWatcher(callID string, ch chan session.CallSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.watchers[callID]
	for i, w := range ws {
		if w == ch {
			m.watchers[callID] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
}

func (m *MemoryStore) ClaimLive(ctx context.Context, userID, callID string) (bool, error) {
	if userID == "" || callID == "" {
		return false, ErrInvalidRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.live[userID]
	if ok && held != callID {
		return false, nil
	}
	m.live[userID] = callID
	return true, nil
}

func (m *MemoryStore) ReleaseLive(ctx context.Context, userID, callID string) error {
	if userID == "" || callID == "" {
		return ErrInvalidRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live[userID] == callID {
		delete(m.live, userID)
	}
	return nil
}
