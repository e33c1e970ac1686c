package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "sportypredict:session"

// SessionStore persists the session blob in Redis under a fixed key.
type SessionStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// New creates a Redis-backed session store. An empty key falls back to the
// default namespace; a zero ttl stores the blob without expiry.
func New(client *redis.Client, key string, ttl time.Duration) *SessionStore {
	if key == "" {
		key = defaultKey
	}
	return &SessionStore{client: client, key: key, ttl: ttl}
}

// Load fetches the stored blob. A missing key yields (nil, nil).
func (s *SessionStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return data, nil
}

// Save writes the blob with the configured TTL.
func (s *SessionStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Delete removes the stored blob.
func (s *SessionStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
