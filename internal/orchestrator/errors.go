package orchestrator

import "errors"

// Error taxonomy for call operations. Network and precondition failures abort
// the in-flight transition and restore the previous active-call value; they are
// never retried here (retry is a caller/UI concern).
var (
	// ErrAlreadyInCall rejects starting or hydrating a call while another one
	// is live for this user. User-visible, no state change.
	ErrAlreadyInCall = errors.New("orchestrator: already in a call")

	// ErrNoActiveCall means the operation has no live call to act on (or the
	// local role does not permit it). Safe to ignore.
	ErrNoActiveCall = errors.New("orchestrator: no active call")

	// ErrInvalidTarget rejects a startCall aimed at nobody or at oneself.
	ErrInvalidTarget = errors.New("orchestrator: invalid call target")

	// ErrTokenFetchFailed wraps media join broker failures. startCall/accept
	// roll back when it occurs.
	ErrTokenFetchFailed = errors.New("orchestrator: media token fetch failed")

	// ErrStoreWriteFailed wraps durable store write failures. No invite is
	// ever sent before the record write succeeds, so a failed write leaves no
	// phantom ringing call visible to the callee.
	ErrStoreWriteFailed = errors.New("orchestrator: call record write failed")

	// ErrMissingSessionCredentials is an invariant violation: joining media
	// without a fetched token. Should never occur after a completed
	// startCall/accept; fatal to the call attempt.
	ErrMissingSessionCredentials = errors.New("orchestrator: missing session credentials")

	// ErrClosed is returned once the orchestrator has shut down.
	ErrClosed = errors.New("orchestrator: closed")
)
