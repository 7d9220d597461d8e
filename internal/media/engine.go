package media

import (
	"context"
	"sync"
)

// Engine is a state-tracking Relay implementation that enforces the singleton
// handle rules without talking to a vendor SDK. The process-side orchestrator
// uses it to mirror device engine state; tests use it to assert join/leave
// discipline.
//
// TODO: add an adapter backed by the vendor RTC SDK's server-side REST API so
// the backend can force-leave a channel on call teardown.
type Engine struct {
	mu sync.Mutex

	initialized bool
	released    bool

	joinedChannel string
	joinedUID     uint32

	muted     bool
	speakerOn bool
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrReleased
	}
	e.initialized = true
	return nil
}

func (e *Engine) JoinChannel(ctx context.Context, channelID string, uid uint32, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrReleased
	}
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.joinedChannel != "" {
		if e.joinedChannel == channelID && e.joinedUID == uid {
			// Duplicate join of the same channel is a no-op.
			return nil
		}
		return ErrAlreadyJoined
	}
	e.joinedChannel = channelID
	e.joinedUID = uid
	return nil
}

func (e *Engine) LeaveChannel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrReleased
	}
	if e.joinedChannel == "" {
		return ErrNotJoined
	}
	e.joinedChannel = ""
	e.joinedUID = 0
	return nil
}

func (e *Engine) MuteLocalAudio(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrReleased
	}
	e.muted = muted
	return nil
}

func (e *Engine) EnableSpeakerphone(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrReleased
	}
	e.speakerOn = on
	return nil
}

func (e *Engine) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	e.joinedChannel = ""
	e.joinedUID = 0
	return nil
}

// JoinedChannel reports the currently joined channel, empty when none.
func (e *Engine) JoinedChannel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.joinedChannel
}

// Muted reports the local mute flag.
func (e *Engine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// SpeakerOn reports the speakerphone flag.
func (e *Engine) SpeakerOn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speakerOn
}
