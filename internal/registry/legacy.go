package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// LegacyMigrationSource is recorded in the metadata of migrated data.
const LegacyMigrationSource = "legacy-migration"

// MigrateLegacy folds the pre-profile layout (top-level categories,
// settings and themeSettings keys in the sync area) into the default
// configuration's key, then removes the old keys. Nothing happens when the
// default key already holds data. It reports whether a migration ran.
func (r *Registry) MigrateLegacy(ctx context.Context) (bool, error) {
	if r.sync == nil {
		return false, nil
	}
	got, err := r.sync.Get(ctx, types.DefaultDataKey,
		types.LegacyCategoriesKey, types.LegacySettingsKey, types.LegacyThemeKey)
	if err != nil {
		return false, err
	}
	if _, ok := got[types.DefaultDataKey]; ok {
		return false, nil
	}

	var data types.ConfigData
	found := false
	if raw, ok := got[types.LegacyCategoriesKey]; ok {
		if err := json.Unmarshal(raw, &data.Categories); err != nil {
			return false, fmt.Errorf("decode legacy categories: %w", err)
		}
		found = true
	}
	if raw, ok := got[types.LegacySettingsKey]; ok {
		if err := json.Unmarshal(raw, &data.Settings); err != nil {
			return false, fmt.Errorf("decode legacy settings: %w", err)
		}
		found = true
	}
	if raw, ok := got[types.LegacyThemeKey]; ok {
		if err := json.Unmarshal(raw, &data.ThemeSettings); err != nil {
			return false, fmt.Errorf("decode legacy theme: %w", err)
		}
		found = true
	}
	if !found {
		return false, nil
	}

	data.Metadata = &types.Metadata{LastModified: r.now().UTC(), Source: LegacyMigrationSource}
	raw, err := json.Marshal(&data)
	if err != nil {
		return false, err
	}
	if err := r.sync.Set(ctx, map[string]json.RawMessage{types.DefaultDataKey: raw}); err != nil {
		return false, err
	}
	if err := r.sync.Remove(ctx, types.LegacyCategoriesKey, types.LegacySettingsKey, types.LegacyThemeKey); err != nil {
		return true, err
	}
	r.logger.Info("migrated legacy dashboard into default config", "categories", len(data.Categories))
	return true, nil
}
