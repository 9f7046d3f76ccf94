// Package cache provides a Dragonfly/Redis client wrapper and the parsed-deck
// cache built on it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-recall/internal/deck"
)

const (
	keyPrefix  = "recall:deck:"
	defaultTTL = 7 * 24 * time.Hour
)

// Cache wraps a Redis/Dragonfly client.
type Cache struct {
	Client *redis.Client
	ttl    time.Duration
}

var _ deck.Cache = (*Cache)(nil)

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New creates a new cache client. Entries expire after ttl; zero uses one
// week.
func New(ctx context.Context, url string, ttl time.Duration) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{Client: client, ttl: ttl}, nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// GetDeck returns the deck stored under key. A miss is (nil, false, nil).
func (c *Cache) GetDeck(ctx context.Context, key string) (*deck.Deck, bool, error) {
	data, err := c.Client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting cached deck: %w", err)
	}

	var d deck.Deck
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, false, fmt.Errorf("decoding cached deck: %w", err)
	}
	return &d, true, nil
}

// PutDeck stores d under key for the cache TTL.
func (c *Cache) PutDeck(ctx context.Context, key string, d *deck.Deck) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding deck: %w", err)
	}
	if err := c.Client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching deck: %w", err)
	}
	return nil
}
