package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicecall-platform/internal/session"
	"voicecall-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "call:"
	feedKeyPrefix   = "callfeed:"
	liveKeyPrefix   = "live:"
)

// RedisStore keeps one JSON document per call id and publishes every write to a
// per-call feed channel. Writes are last-write-wins.
type RedisStore struct {
	rdb *redis.Client
	log *slog.Logger

	// claimTTL bounds how long an abandoned device can hold a user's live-call
	// slot. Renewed on every successful re-claim.
	claimTTL time.Duration
}

type RedisStoreOptions struct {
	ClaimTTL time.Duration
}

func NewRedisStore(rdb *redis.Client, log *slog.Logger, opts RedisStoreOptions) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("store: redis client is required")
	}
	if log == nil {
		log = slog.Default()
	}
	ttl := opts.ClaimTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisStore{rdb: rdb, log: log, claimTTL: ttl}, nil
}

func (s *RedisStore) Put(ctx context.Context, rec session.CallSession) error {
	if rec.ID == "" {
		return ErrInvalidRecord
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal call record: %w", err)
	}
	if err := s.rdb.Set(ctx, recordKeyPrefix+rec.ID, payload, 0).Err(); err != nil {
		return fmt.Errorf("store: write call record: %w", err)
	}
	// Change feed is best-effort; peers also reconcile via Get.
	if err := s.rdb.Publish(ctx, feedKeyPrefix+rec.ID, payload).Err(); err != nil {
		s.log.Warn("call feed publish failed", "call_id", rec.ID, "err", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, callID string) (session.CallSession, bool, error) {
	if callID == "" {
		return session.CallSession{}, false, ErrInvalidRecord
	}
	raw, err := s.rdb.Get(ctx, recordKeyPrefix+callID).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.CallSession{}, false, nil
	}
	if err != nil {
		return session.CallSession{}, false, fmt.Errorf("store: read call record: %w", err)
	}
	var rec session.CallSession
	if err := json.Unmarshal(raw, &rec); err != nil {
		return session.CallSession{}, false, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return rec, true, nil
}

func (s *RedisStore) Watch(ctx context.Context, callID string) (<-chan session.CallSession, error) {
	if callID == "" {
		return nil, ErrInvalidRecord
	}
	sub := s.rdb.Subscribe(ctx, feedKeyPrefix+callID)
	// Force the subscription to be established before returning so callers do
	// not miss writes that race the watch setup.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("store: subscribe call feed: %w", err)
	}

	out := make(chan session.CallSession, 8)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var rec session.CallSession
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					s.log.Warn("discarding malformed call feed message", "call_id", callID, "err", err)
					continue
				}
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

func (s *RedisStore) ClaimLive(ctx context.Context, userID, callID string) (bool, error) {
	if userID == "" || callID == "" {
		return false, ErrInvalidRecord
	}
	return utils.AcquireLiveCallClaim(ctx, s.rdb, liveKeyPrefix+userID, callID, s.claimTTL)
}

func (s *RedisStore) ReleaseLive(ctx context.Context, userID, callID string) error {
	if userID == "" || callID == "" {
		return ErrInvalidRecord
	}
	return utils.ReleaseLiveCallClaim(ctx, s.rdb, liveKeyPrefix+userID, callID)
}
