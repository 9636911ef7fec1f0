// Package cache is a thin key-value response cache over Redis, used by the
// API layer to absorb repeated bar queries.
package cache

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Service wraps a Redis client. A nil Service is valid and caches nothing,
// so the API works without Redis configured.
type Service struct {
	client *redis.Client
}

// NewService connects to Redis and verifies the connection. Returns an error
// when Redis is unreachable; callers may continue with a nil service.
func NewService(addr string, db int) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("Connected to cache at %s (db %d)", addr, db)
	return &Service{client: client}, nil
}

// Get returns the cached payload for key, and whether it was present.
func (s *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores a payload under key with the given TTL. Failures are logged and
// otherwise ignored; the cache is best-effort.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if s == nil {
		return
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("Cache set failed for %s: %v", key, err)
	}
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
