package savecoord

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// legacyStore reads and writes the pre-profile layout: one top-level key
// per field in the sync area.
type legacyStore struct {
	area types.StorageArea
}

func (s legacyStore) CurrentConfigData(ctx context.Context) (*types.ConfigData, error) {
	got, err := s.area.Get(ctx, types.LegacyCategoriesKey, types.LegacySettingsKey, types.LegacyThemeKey)
	if err != nil {
		return nil, err
	}
	if len(got) == 0 {
		return nil, nil
	}
	var data types.ConfigData
	if raw, ok := got[types.LegacyCategoriesKey]; ok {
		if err := json.Unmarshal(raw, &data.Categories); err != nil {
			return nil, fmt.Errorf("decode %s: %w", types.LegacyCategoriesKey, err)
		}
	}
	if raw, ok := got[types.LegacySettingsKey]; ok {
		if err := json.Unmarshal(raw, &data.Settings); err != nil {
			return nil, fmt.Errorf("decode %s: %w", types.LegacySettingsKey, err)
		}
	}
	if raw, ok := got[types.LegacyThemeKey]; ok {
		if err := json.Unmarshal(raw, &data.ThemeSettings); err != nil {
			return nil, fmt.Errorf("decode %s: %w", types.LegacyThemeKey, err)
		}
	}
	return &data, nil
}

func (s legacyStore) SaveCurrentConfigData(ctx context.Context, data *types.ConfigData) error {
	items := make(map[string]json.RawMessage, 3)
	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		items[key] = raw
		return nil
	}
	if data.Categories != nil {
		if err := put(types.LegacyCategoriesKey, data.Categories); err != nil {
			return err
		}
	}
	if data.Settings != nil {
		if err := put(types.LegacySettingsKey, data.Settings); err != nil {
			return err
		}
	}
	if data.ThemeSettings != nil {
		if err := put(types.LegacyThemeKey, data.ThemeSettings); err != nil {
			return err
		}
	}
	if len(items) == 0 {
		return nil
	}
	if err := s.area.Set(ctx, items); err != nil {
		return fmt.Errorf("%w: %w", types.ErrBackendWrite, err)
	}
	return nil
}
