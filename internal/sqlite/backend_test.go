// Tests for the SQLite storage areas: lifecycle, batched reads and writes,
// quota enforcement, prefix listing.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

func newAttachedBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	t.Cleanup(func() { b.Detach() })
	return b
}

func TestBackend_Attach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	require.NoError(t, b.Attach(DefaultConfig(dir)))
	defer b.Detach()

	_, err := os.Stat(filepath.Join(dir, DBFileName))
	assert.NoError(t, err, "database file must exist after Attach")
	assert.Equal(t, filepath.Join(dir, DBFileName), b.Path())

	err = b.Attach(DefaultConfig(dir))
	assert.ErrorIs(t, err, types.ErrAlreadyAttached)
}

func TestBackend_AttachRejectsNegativeQuota(t *testing.T) {
	b := NewBackend()
	err := b.Attach(Config{DataDir: t.TempDir(), SyncQuotaBytes: -1})
	assert.ErrorIs(t, err, ErrNegativeQuota)
}

func TestBackend_Detach(t *testing.T) {
	b := NewBackend()
	require.NoError(t, b.Attach(DefaultConfig(t.TempDir())))

	require.NoError(t, b.Detach())
	assert.NoError(t, b.Detach(), "second Detach must be a no-op")

	_, err := b.Sync().Get(context.Background(), "k")
	assert.ErrorIs(t, err, types.ErrNotAttached)
	err = b.Local().Set(context.Background(), map[string]json.RawMessage{"k": json.RawMessage(`1`)})
	assert.ErrorIs(t, err, types.ErrNotAttached)
}

func TestBackend_DataSurvivesReattach(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b := NewBackend()
	require.NoError(t, b.Attach(DefaultConfig(dir)))
	require.NoError(t, b.Sync().Set(ctx, map[string]json.RawMessage{"a": json.RawMessage(`{"x":1}`)}))
	require.NoError(t, b.Detach())

	b2 := NewBackend()
	require.NoError(t, b2.Attach(DefaultConfig(dir)))
	defer b2.Detach()
	got, err := b2.Sync().Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(got["a"]))
}

func TestBackend_DataVersionTracksOtherConnections(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	watcher := newAttachedBackend(t, DefaultConfig(dir))
	writer := newAttachedBackend(t, DefaultConfig(dir))

	v1, err := watcher.DataVersion(ctx)
	require.NoError(t, err)

	require.NoError(t, watcher.Local().Set(ctx, map[string]json.RawMessage{"own": json.RawMessage(`1`)}))
	v2, err := watcher.DataVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "own writes do not change the version")

	require.NoError(t, writer.Sync().Set(ctx, map[string]json.RawMessage{"other": json.RawMessage(`2`)}))
	v3, err := watcher.DataVersion(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v2, v3)

	require.NoError(t, watcher.Detach())
	_, err = watcher.DataVersion(ctx)
	assert.ErrorIs(t, err, types.ErrNotAttached)
}

func TestBackend_AreaLookup(t *testing.T) {
	b := NewBackend()

	a, err := b.Area(types.AreaSync)
	require.NoError(t, err)
	assert.Same(t, b.Sync(), a)

	a, err = b.Area(types.AreaLocal)
	require.NoError(t, err)
	assert.Same(t, b.Local(), a)

	_, err = b.Area("session")
	assert.Error(t, err)
}

func TestArea_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	b := newAttachedBackend(t, DefaultConfig(""))
	area := b.Local()

	require.NoError(t, area.Set(ctx, map[string]json.RawMessage{
		"one": json.RawMessage(`{"n":1}`),
		"two": json.RawMessage(`[2]`),
	}))

	got, err := area.Get(ctx, "one", "two", "missing")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.JSONEq(t, `{"n":1}`, string(got["one"]))
	assert.JSONEq(t, `[2]`, string(got["two"]))

	require.NoError(t, area.Set(ctx, map[string]json.RawMessage{"one": json.RawMessage(`"replaced"`)}))
	got, err = area.Get(ctx, "one")
	require.NoError(t, err)
	assert.JSONEq(t, `"replaced"`, string(got["one"]))

	require.NoError(t, area.Remove(ctx, "one", "missing"))
	got, err = area.Get(ctx, "one", "two")
	require.NoError(t, err)
	assert.NotContains(t, got, "one")
	assert.Contains(t, got, "two")
}

func TestArea_AreasAreIsolated(t *testing.T) {
	ctx := context.Background()
	b := newAttachedBackend(t, DefaultConfig(""))

	require.NoError(t, b.Sync().Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`"sync"`)}))
	got, err := b.Local().Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestArea_SetRejectsInvalidJSON(t *testing.T) {
	b := newAttachedBackend(t, DefaultConfig(""))
	err := b.Local().Set(context.Background(), map[string]json.RawMessage{"k": json.RawMessage(`{nope`)})
	assert.ErrorIs(t, err, types.ErrBackendWrite)
}

func TestArea_Quota(t *testing.T) {
	ctx := context.Background()
	big := func(n int) json.RawMessage {
		return json.RawMessage(`"` + strings.Repeat("x", n-2) + `"`)
	}

	tests := []struct {
		name    string
		cfg     Config
		seed    map[string]json.RawMessage
		write   map[string]json.RawMessage
		wantErr bool
	}{
		{
			name:  "within limits",
			cfg:   Config{SyncQuotaBytes: 100, SyncItemQuotaBytes: 50},
			write: map[string]json.RawMessage{"k": big(40)},
		},
		{
			name:    "item over per-item quota",
			cfg:     Config{SyncQuotaBytes: 1000, SyncItemQuotaBytes: 50},
			write:   map[string]json.RawMessage{"k": big(50)},
			wantErr: true,
		},
		{
			name:    "batch over total quota",
			cfg:     Config{SyncQuotaBytes: 100},
			seed:    map[string]json.RawMessage{"a": big(60)},
			write:   map[string]json.RawMessage{"b": big(60)},
			wantErr: true,
		},
		{
			name:  "overwrite does not double count",
			cfg:   Config{SyncQuotaBytes: 100},
			seed:  map[string]json.RawMessage{"a": big(60)},
			write: map[string]json.RawMessage{"a": big(90)},
		},
		{
			name:  "zero quota disables limits",
			cfg:   Config{},
			write: map[string]json.RawMessage{"k": big(20000)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newAttachedBackend(t, tt.cfg)
			area := b.Sync()
			if tt.seed != nil {
				require.NoError(t, area.Set(ctx, tt.seed))
			}
			err := area.Set(ctx, tt.write)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrQuotaExceeded)
			assert.ErrorIs(t, err, types.ErrBackendWrite)

			keys := make([]string, 0, len(tt.write))
			for k := range tt.write {
				keys = append(keys, k)
			}
			got, err := area.Get(ctx, keys...)
			require.NoError(t, err)
			for k := range tt.write {
				if _, seeded := tt.seed[k]; !seeded {
					assert.NotContains(t, got, k, "failed batch must not be written")
				}
			}
		})
	}
}

func TestArea_QuotaFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	b := newAttachedBackend(t, Config{SyncItemQuotaBytes: 20})

	err := b.Sync().Set(ctx, map[string]json.RawMessage{
		"small": json.RawMessage(`1`),
		"large": json.RawMessage(`"` + strings.Repeat("y", 40) + `"`),
	})
	require.True(t, errors.Is(err, types.ErrQuotaExceeded))

	got, err := b.Sync().Get(ctx, "small", "large")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestArea_Keys(t *testing.T) {
	ctx := context.Background()
	b := newAttachedBackend(t, DefaultConfig(""))
	area := b.Local()

	require.NoError(t, area.Set(ctx, map[string]json.RawMessage{
		"tabshelf_cache_default": json.RawMessage(`{}`),
		"tabshelf_cache_u1":      json.RawMessage(`{}`),
		"tabshelfXcacheXother":   json.RawMessage(`{}`),
		"unrelated":              json.RawMessage(`{}`),
	}))

	keys, err := area.Keys(ctx, "tabshelf_cache_")
	require.NoError(t, err)
	assert.Equal(t, []string{"tabshelf_cache_default", "tabshelf_cache_u1"}, keys,
		"underscore in prefix must match literally")

	all, err := area.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestArea_BytesInUse(t *testing.T) {
	ctx := context.Background()
	b := newAttachedBackend(t, DefaultConfig(""))

	n, err := b.Sync().BytesInUse(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, b.Sync().Set(ctx, map[string]json.RawMessage{"ab": json.RawMessage(`"cd"`)}))
	n, err = b.Sync().BytesInUse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
