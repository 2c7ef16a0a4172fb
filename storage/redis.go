package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Redis is a types.Store backed by Redis.
//
// Every Set refreshes the key's TTL, so visitor state slides forward with
// activity and idle visitors age out of Redis without an explicit sweep.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// Compile-time assertion that Redis implements Store.
var _ types.Store = (*Redis)(nil)

// NewRedis wraps an existing Redis client.
//
// Parameters:
//   - client: Connected go-redis client (single node, cluster, or sentinel)
//   - ttl: Expiry applied on every Set; zero means keys never expire
//
// Returns:
//   - *Redis: A store writing through the client
//
// Example:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := storage.NewRedis(rdb, 45*24*time.Hour)
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Get returns the value stored under key.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, types.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return value, nil
}

// Set stores value under key and refreshes its TTL.
func (s *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	return nil
}
