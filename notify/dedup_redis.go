package notify

import (
	"context"
	"time"

	"gumboard-api/domain"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisDedupPrefix = "notify:dedup:"

// RedisDeduper shares dedup state between instances. Keys expire with the
// window, so Redis performs the cleanup.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
	logger *log.Logger
}

// NewRedisDeduper creates a deduper using the provided Redis client and window.
func NewRedisDeduper(client *redis.Client, window time.Duration, logger *log.Logger) *RedisDeduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisDeduper{client: client, window: window, logger: logger}
}

func (r *RedisDeduper) key(entityID string, action domain.Action, content string) string {
	return redisDedupPrefix + dedupKey(entityID, action, content)
}

// ShouldSend records the key if it does not already exist. Redis failures let
// the message through.
func (r *RedisDeduper) ShouldSend(ctx context.Context, entityID string, action domain.Action, content string, _ time.Time) bool {
	added, err := r.client.SetNX(ctx, r.key(entityID, action, content), time.Now().UnixMilli(), r.window).Result()
	if err != nil {
		r.logger.WithError(err).WithField("entity", entityID).Warn("dedup lookup failed")
		return true
	}
	return added
}
