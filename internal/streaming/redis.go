package streaming

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMirror appends every published event to a per-session Redis stream so
// consumers outside this process (or after a restart) can still read the
// event history. Publishing is best-effort: Redis failures are logged and
// never block the engine.
type RedisMirror struct {
	rdb    *redis.Client
	logger *zap.Logger
	ttl    time.Duration
	maxLen int64
}

// NewRedisMirror builds a mirror on an existing Redis client.
func NewRedisMirror(rdb *redis.Client, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{
		rdb:    rdb,
		logger: logger,
		ttl:    24 * time.Hour,
		maxLen: 1024,
	}
}

// StreamKey returns the Redis stream key for a session.
func StreamKey(sessionID string) string {
	return "research:events:" + sessionID
}

// Publish implements Mirror.
func (m *RedisMirror) Publish(sessionID string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := StreamKey(sessionID)
	err := m.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: m.maxLen,
		Approx: true,
		Values: map[string]any{
			"event": string(evt.Marshal()),
			"type":  evt.EventType,
			"seq":   evt.Seq,
		},
	}).Err()
	if err != nil {
		m.logger.Warn("Failed to mirror event to Redis",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}
	// Refresh TTL so abandoned sessions age out.
	_ = m.rdb.Expire(ctx, key, m.ttl).Err()
}
