package datamgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStarterData(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := StarterData(now)
	b := StarterData(now)
	assert.Equal(t, a, b, "starter data is deterministic")

	require.Len(t, a.Categories, 3)
	seen := map[string]bool{}
	for _, c := range a.Categories {
		assert.GreaterOrEqual(t, len(c.Shortcuts), 3)
		assert.False(t, seen[c.ID], "category ids are unique")
		seen[c.ID] = true
		for _, s := range c.Shortcuts {
			assert.NotEmpty(t, s.URL)
		}
	}
	assert.Equal(t, now, a.Metadata.LastModified)
	assert.Equal(t, StarterSource, a.Metadata.Source)
}
