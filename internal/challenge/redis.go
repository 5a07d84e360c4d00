package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// redisKeyPrefix namespaces challenge keys in a shared Redis instance.
const redisKeyPrefix = "challenge:"

// RedisStore keeps in-flight ceremony sessions in Redis so several nodes can
// share one challenge space. Expiry is handled server-side by Redis TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A non-positive ttl falls back
// to DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Store saves session data with a fresh expiry.
func (s *RedisStore) Store(ctx context.Context, key string, data webauthn.SessionData) error {
	raw, errMarshal := json.Marshal(data)
	if errMarshal != nil {
		return errMarshal
	}
	ttl := s.ttl
	if !data.Expires.IsZero() {
		if until := time.Until(data.Expires); until > 0 {
			ttl = until
		}
	}
	return s.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err()
}

// Get returns session data if present and not expired. Storage errors are
// logged and reported as absence, matching the store contract.
func (s *RedisStore) Get(ctx context.Context, key string) (webauthn.SessionData, bool) {
	raw, errGet := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			log.WithError(errGet).WithField("key", key).Warn("challenge redis get failed")
		}
		return webauthn.SessionData{}, false
	}
	var data webauthn.SessionData
	if errUnmarshal := json.Unmarshal(raw, &data); errUnmarshal != nil {
		log.WithError(errUnmarshal).WithField("key", key).Warn("challenge redis payload corrupt")
		s.Clear(ctx, key)
		return webauthn.SessionData{}, false
	}
	return data, true
}

// Clear removes an entry.
func (s *RedisStore) Clear(ctx context.Context, key string) {
	if errDel := s.client.Del(ctx, redisKeyPrefix+key).Err(); errDel != nil {
		log.WithError(errDel).WithField("key", key).Warn("challenge redis delete failed")
	}
}

// Sweep is a no-op; Redis expires entries server-side.
func (s *RedisStore) Sweep(context.Context) {}
