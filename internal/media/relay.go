package media

import (
	"context"
	"errors"
)

// Relay defines the provider-agnostic contract of the real-time media SDK.
//
// Rules:
// - No SDK calls outside media adapters.
// - The underlying engine handle is a per-device singleton: at most one joined
//   channel at a time; Release invalidates the handle.
// - Transport internals (packetization, codecs, jitter buffers) belong to the
//   SDK and are out of scope here.
type Relay interface {
	Initialize() error
	JoinChannel(ctx context.Context, channelID string, uid uint32, token string) error
	LeaveChannel(ctx context.Context) error
	MuteLocalAudio(muted bool) error
	EnableSpeakerphone(on bool) error
	Release() error
}

var (
	ErrNotInitialized = errors.New("media: engine not initialized")
	ErrAlreadyJoined  = errors.New("media: channel already joined")
	ErrNotJoined      = errors.New("media: no channel joined")
	ErrReleased       = errors.New("media: engine released")
)
