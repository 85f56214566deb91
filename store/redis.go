package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adam-Behun/optimalbot-portal-sub000/flow"
)

// StateCacheConfig configures the Redis-backed FlowState cache.
type StateCacheConfig struct {
	// Client is the go-redis client to use. Required.
	Client *redis.Client
	// KeyPrefix namespaces cache keys, default "flowstate:".
	KeyPrefix string
	// TTL bounds how long a suspended session's state survives in Redis
	// before it is considered abandoned. Zero disables expiry.
	TTL time.Duration
}

// StateCache caches a call session's flow.State snapshot in Redis so a
// handoff (e.g. voicemail to live conversation) or a process restart can
// resume the same FlowState rather than starting the caller over.
type StateCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewStateCache builds a StateCache over cfg.Client.
func NewStateCache(cfg StateCacheConfig) (*StateCache, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("store: redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "flowstate:"
	}
	return &StateCache{client: cfg.Client, keyPrefix: prefix, ttl: cfg.TTL}, nil
}

func (c *StateCache) key(sessionID string) string {
	return c.keyPrefix + sessionID
}

// Save serializes state's snapshot and stores it under sessionID.
func (c *StateCache) Save(ctx context.Context, sessionID string, state *flow.State) error {
	payload, err := json.Marshal(state.Snapshot())
	if err != nil {
		return fmt.Errorf("store: marshal flow state: %w", err)
	}
	if err := c.client.Set(ctx, c.key(sessionID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("store: save flow state: %w", err)
	}
	return nil
}

// Load fetches sessionID's cached snapshot and restores it into state. It
// reports found=false, nil if no snapshot is cached, matching a fresh call
// rather than a resumed one.
func (c *StateCache) Load(ctx context.Context, sessionID string, state *flow.State) (found bool, err error) {
	payload, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: load flow state: %w", err)
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		return false, fmt.Errorf("store: unmarshal flow state: %w", err)
	}
	state.Restore(values)
	return true, nil
}

// Delete clears sessionID's cached snapshot, called once a session's
// cleanup phase has completed.
func (c *StateCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("store: delete flow state: %w", err)
	}
	return nil
}
