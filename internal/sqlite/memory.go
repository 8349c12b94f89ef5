package sqlite

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// MemoryArea is an in-process StorageArea with the same quota semantics as
// Area. It backs ephemeral runs and tests.
type MemoryArea struct {
	mu    sync.Mutex
	items map[string]json.RawMessage
	quota quota
}

var _ types.StorageArea = (*MemoryArea)(nil)

// NewMemoryArea returns an empty area. Zero quotas disable limits.
func NewMemoryArea(totalQuota, itemQuota int) *MemoryArea {
	return &MemoryArea{
		items: map[string]json.RawMessage{},
		quota: quota{total: totalQuota, perItem: itemQuota},
	}
}

// Get implements types.StorageArea.
func (m *MemoryArea) Get(_ context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.items[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

// Set implements types.StorageArea.
func (m *MemoryArea) Set(_ context.Context, items map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := 0
	for k, v := range m.items {
		if _, replaced := items[k]; !replaced {
			existing += len(k) + len(v)
		}
	}
	if err := m.quota.check(existing, items); err != nil {
		return err
	}
	for k, v := range items {
		m.items[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

// Remove implements types.StorageArea.
func (m *MemoryArea) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Keys implements types.StorageArea.
func (m *MemoryArea) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (m *MemoryArea) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
