package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "vinylbot:session:"

// RedisStore backs sessions with Redis so multiple bot instances can share
// conversation state. Expiry of abandoned sessions is delegated to key TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. ttl <= 0 stores keys without expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(userID int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, userID)
}

// GetOrCreate returns the user's session, creating an idle one if absent.
func (r *RedisStore) GetOrCreate(ctx context.Context, userID int64) (*Session, error) {
	s, err := r.Get(ctx, userID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	s = &Session{UserID: userID, Step: StepIdle, UpdatedAt: time.Now()}
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the user's session or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, userID int64) (*Session, error) {
	data, err := r.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}

// Save stores the session and refreshes its TTL.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	cp := *s
	cp.UpdatedAt = time.Now()
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(s.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// Clear removes the user's session.
func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}
