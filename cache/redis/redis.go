// Package redis implements a shared routing-decision cache over Redis, so
// multiple engine instances reuse each other's routing decisions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	hearth "github.com/hearthkit/hearth"
)

// DefaultTTL is the decision expiry when none is configured.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "hearth:routing:"

// Options configure the cache.
type Options struct {
	// TTL bounds how long a decision stays valid; zero takes DefaultTTL.
	TTL time.Duration
	// Logger for degraded lookups. Nil discards.
	Logger *slog.Logger
}

// Cache is a hearth.RoutingDecisionCache backed by Redis. Matching is
// exact by fingerprint; Redis handles expiry. Lookup failures degrade to
// misses so a Redis outage never blocks routing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New builds the cache over an externally-owned client. The caller closes
// the client.
func New(client *redis.Client, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{client: client, ttl: opts.TTL, logger: opts.Logger}
}

func (c *Cache) Get(ctx context.Context, key hearth.RoutingKey) (hearth.AgentChoice, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key.Fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return hearth.AgentChoice{}, false, nil
	}
	if err != nil {
		c.logger.Warn("routing cache lookup degraded to miss", "error", err)
		return hearth.AgentChoice{}, false, nil
	}
	var choice hearth.AgentChoice
	if err := json.Unmarshal(raw, &choice); err != nil {
		// A corrupt entry is useless; drop it.
		_ = c.client.Del(ctx, keyPrefix+key.Fingerprint).Err()
		return hearth.AgentChoice{}, false, nil
	}
	return choice, true, nil
}

func (c *Cache) Put(ctx context.Context, key hearth.RoutingKey, choice hearth.AgentChoice) error {
	raw, err := json.Marshal(choice)
	if err != nil {
		return fmt.Errorf("redis: encode routing decision: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key.Fingerprint, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: store routing decision: %w", err)
	}
	return nil
}

var _ hearth.RoutingDecisionCache = (*Cache)(nil)
