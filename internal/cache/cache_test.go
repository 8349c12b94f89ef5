package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tabshelf/internal/sqlite"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(opts ...Option) (*Cache, *sqlite.MemoryArea, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	area := sqlite.NewMemoryArea(0, 0)
	return New(area, append([]Option{WithClock(clock.Now)}, opts...)...), area, clock
}

func sample() *types.ConfigData {
	return &types.ConfigData{
		Categories: []types.Category{{ID: "c1", Name: "News"}},
		Settings:   &types.Settings{ViewMode: types.ViewGrid},
	}
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestCache()

	require.NoError(t, c.Put(ctx, "default", sample()))

	got, err := c.Get(ctx, "default")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "News", got.Categories[0].Name)
	require.NotNil(t, got.Metadata.Cache)
	assert.True(t, got.Metadata.Cache.IsValid)
	assert.Equal(t, clock.t, got.Metadata.Cache.CachedAt)
	assert.Equal(t, clock.t.Add(DefaultTTL), got.Metadata.Cache.ExpiresAt)
}

func TestCache_PutDoesNotMutateInput(t *testing.T) {
	c, _, _ := newTestCache()
	data := sample()
	require.NoError(t, c.Put(context.Background(), "default", data))
	assert.Nil(t, data.Metadata)
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestCache(WithTTL(time.Hour))
	require.NoError(t, c.Put(ctx, "u1", sample()))

	clock.Advance(59 * time.Minute)
	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.Advance(2 * time.Minute)
	got, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entries are misses")

	ok, err := c.Peek(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok, "Peek ignores expiry")
}

func TestCache_InvalidFlagIsMiss(t *testing.T) {
	ctx := context.Background()
	c, area, clock := newTestCache()

	data := sample()
	data.Metadata = &types.Metadata{Cache: &types.CacheMetadata{
		CachedAt: clock.t, ExpiresAt: clock.t.Add(time.Hour), IsValid: false,
	}}
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, area.Set(ctx, map[string]json.RawMessage{types.CacheKey("x"): raw}))

	got, err := c.Get(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_UnreadableEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, area, _ := newTestCache()
	require.NoError(t, area.Set(ctx, map[string]json.RawMessage{types.CacheKey("x"): json.RawMessage(`[1,2]`)}))

	got, err := c.Get(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache()
	require.NoError(t, c.Put(ctx, "a", sample()))
	require.NoError(t, c.Invalidate(ctx, "a"))

	ok, err := c.Peek(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, "never-cached"))
}

func TestCache_InvalidateAllExcept(t *testing.T) {
	ctx := context.Background()
	c, area, _ := newTestCache()
	for _, id := range []string{"default", "u1", "u2"} {
		require.NoError(t, c.Put(ctx, id, sample()))
	}
	require.NoError(t, area.Set(ctx, map[string]json.RawMessage{"tabshelf_app_data": json.RawMessage(`{}`)}))

	require.NoError(t, c.InvalidateAllExcept(ctx, "u1"))

	keys, err := area.Keys(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{types.CacheKey("u1"), "tabshelf_app_data"}, keys)
}

func TestStripMetadata(t *testing.T) {
	data := sample()
	data.Metadata = &types.Metadata{Source: "x", Cache: &types.CacheMetadata{IsValid: true}}

	out := StripMetadata(data)
	assert.Nil(t, out.Metadata.Cache)
	assert.Equal(t, "x", out.Metadata.Source)
	assert.NotNil(t, data.Metadata.Cache, "input is untouched")
	assert.Nil(t, StripMetadata(nil))
}
