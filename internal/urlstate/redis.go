package urlstate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps locations in Redis as encoded query strings so a
// location survives a restart of the server process.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

// WithTTL sets the expiration of stored locations.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to the Redis server at address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "legtrans:location:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (url.Values, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, backend.Nil) {
		return url.Values{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load location from redis: %w", err)
	}
	q, err := url.ParseQuery(val)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored location: %w", err)
	}
	return q, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, query url.Values) error {
	if err := s.client.Set(ctx, s.key(id), query.Encode(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save location to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete location from redis: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
