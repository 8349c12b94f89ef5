// Package cache keeps a per-configuration copy of loaded data in the local
// storage area, stamped with an expiry.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// DefaultTTL is how long a cached dataset is served without reloading.
const DefaultTTL = 24 * time.Hour

// Cache stores one envelope per configuration under types.CacheKey(id).
type Cache struct {
	area   types.StorageArea
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger for decode failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a cache over area.
func New(area types.StorageArea, opts ...Option) *Cache {
	c := &Cache{area: area, ttl: DefaultTTL, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached data for id when present, valid and unexpired.
// It never touches the network. A nil result is a miss.
func (c *Cache) Get(ctx context.Context, id string) (*types.ConfigData, error) {
	data, err := c.read(ctx, id)
	if err != nil || data == nil {
		return nil, err
	}
	if data.Metadata == nil || !data.Metadata.Cache.Usable(c.now()) {
		return nil, nil
	}
	return data, nil
}

// Peek reports whether an envelope exists for id regardless of expiry.
func (c *Cache) Peek(ctx context.Context, id string) (bool, error) {
	got, err := c.area.Get(ctx, types.CacheKey(id))
	if err != nil {
		return false, err
	}
	_, ok := got[types.CacheKey(id)]
	return ok, nil
}

// Put stores a copy of data for id with fresh cache metadata.
func (c *Cache) Put(ctx context.Context, id string, data *types.ConfigData) error {
	if data == nil {
		return nil
	}
	envelope := data.Clone()
	if envelope.Metadata == nil {
		envelope.Metadata = &types.Metadata{}
	}
	now := c.now().UTC()
	envelope.Metadata.Cache = &types.CacheMetadata{
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
		IsValid:   true,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode cache for %s: %w", id, err)
	}
	return c.area.Set(ctx, map[string]json.RawMessage{types.CacheKey(id): raw})
}

// Invalidate removes the envelope for id.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	return c.area.Remove(ctx, types.CacheKey(id))
}

// InvalidateAllExcept removes every envelope except keep's.
func (c *Cache) InvalidateAllExcept(ctx context.Context, keep string) error {
	keys, err := c.area.Keys(ctx, types.CacheKeyPrefix)
	if err != nil {
		return err
	}
	stale := keys[:0]
	for _, k := range keys {
		if k != types.CacheKey(keep) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return c.area.Remove(ctx, stale...)
}

// StripMetadata returns a copy of data without cache metadata, the form
// written to backends.
func StripMetadata(data *types.ConfigData) *types.ConfigData {
	out := data.Clone()
	if out != nil && out.Metadata != nil {
		out.Metadata.Cache = nil
	}
	return out
}

func (c *Cache) read(ctx context.Context, id string) (*types.ConfigData, error) {
	key := types.CacheKey(id)
	got, err := c.area.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	raw, ok := got[key]
	if !ok {
		return nil, nil
	}
	data, err := types.DecodeConfigData(raw)
	if err != nil {
		c.logger.Warn("discarding unreadable cache entry", "config", id, "error", err)
		return nil, nil
	}
	return data, nil
}
