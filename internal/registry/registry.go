// Package registry holds the durable record of known configurations and
// which one is active.
//
// A Registry is not safe for concurrent use; the data manager serializes
// access to it.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// RecoveredDisplayName names a remote configuration re-registered from the
// persisted remote settings.
const RecoveredDisplayName = "Cloud Sync"

// Registry is the in-memory AppData plus the storage it persists to.
type Registry struct {
	local  types.StorageArea
	sync   types.StorageArea
	logger *slog.Logger
	now    func() time.Time

	data types.AppData
}

// New returns a registry persisted in local. sync is consulted for the
// pre-profile layout during bootstrap. The registry starts as the default
// bootstrap until Load runs.
func New(local, sync types.StorageArea, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		local:  local,
		sync:   sync,
		logger: logger,
		now:    time.Now,
		data:   types.NewAppData(),
	}
}

// SetClock overrides time.Now for CreatedAt stamps.
func (r *Registry) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Load reads the registry. When none is stored (or it cannot be decoded)
// the default bootstrap is created, legacy data is migrated and the result
// is persisted. created reports whether bootstrap happened.
func (r *Registry) Load(ctx context.Context) (created bool, err error) {
	got, err := r.local.Get(ctx, types.AppDataKey)
	if err != nil {
		return false, fmt.Errorf("read registry: %w", err)
	}
	if raw, ok := got[types.AppDataKey]; ok {
		data, derr := decodeAppData(raw, r.logger)
		if derr == nil {
			r.data = data
			return false, nil
		}
		r.logger.Warn("registry unreadable, bootstrapping default", "error", derr)
	}

	r.data = types.NewAppData()
	r.stampCreated(types.DefaultConfigID)
	if _, err := r.MigrateLegacy(ctx); err != nil {
		r.logger.Warn("legacy migration failed", "error", err)
	}
	if err := r.Persist(ctx); err != nil {
		return true, err
	}
	r.logger.Info("registry bootstrapped", "config", types.DefaultConfigID)
	return true, nil
}

// decodeAppData parses the stored registry. Entries that fail to decode are
// dropped with a warning rather than failing the whole record.
func decodeAppData(raw json.RawMessage, logger *slog.Logger) (types.AppData, error) {
	var wire struct {
		CurrentUser        types.CurrentUser          `json:"currentUser"`
		UserConfigs        map[string]json.RawMessage `json:"userConfigs"`
		PaginationSettings *types.PaginationSettings  `json:"paginationSettings"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return types.AppData{}, err
	}
	data := types.AppData{
		CurrentUser:        wire.CurrentUser,
		UserConfigs:        make(map[string]types.UserConfig, len(wire.UserConfigs)),
		PaginationSettings: types.DefaultPagination,
	}
	if wire.PaginationSettings != nil && wire.PaginationSettings.ShortcutsPerPage > 0 {
		data.PaginationSettings = *wire.PaginationSettings
	}
	for id, entry := range wire.UserConfigs {
		var cfg types.UserConfig
		if err := json.Unmarshal(entry, &cfg); err != nil {
			logger.Warn("dropping unreadable config entry", "config", id, "error", err)
			continue
		}
		if cfg.ConfigID == "" {
			cfg.ConfigID = id
		}
		if err := cfg.Validate(); err != nil {
			logger.Warn("dropping invalid config entry", "config", id, "error", err)
			continue
		}
		data.UserConfigs[cfg.ConfigID] = cfg
	}
	return data, nil
}

// RecoverRemoteConfig re-registers the remote configuration named by
// settings when it is enabled but missing from the registry. No network is
// involved. It reports whether the registry changed.
func (r *Registry) RecoverRemoteConfig(settings types.RemoteSettings) bool {
	userID := strings.TrimSpace(settings.UserID)
	if !settings.Enabled || userID == "" {
		return false
	}
	if _, ok := r.data.UserConfigs[userID]; ok {
		return false
	}
	cfg := types.NewRemoteConfig(userID, RecoveredDisplayName)
	cfg.CreatedAt = r.now().UTC()
	r.data.UserConfigs[userID] = cfg
	if r.data.CurrentUser.ConfigID == userID {
		r.activate(userID)
	}
	r.logger.Info("recovered remote config from settings", "config", userID)
	return true
}

// Validate repairs the registry so the active id exists and default is a
// local configuration. It reports whether anything changed.
func (r *Registry) Validate() bool {
	repaired := false
	if r.data.UserConfigs == nil {
		r.data.UserConfigs = map[string]types.UserConfig{}
	}
	if def, ok := r.data.UserConfigs[types.DefaultConfigID]; !ok || def.Kind() != types.KindLocal {
		r.logger.Warn("default config missing, recreating")
		cfg := types.DefaultUserConfig()
		cfg.CreatedAt = r.now().UTC()
		r.data.UserConfigs[types.DefaultConfigID] = cfg
		repaired = true
	}
	if _, ok := r.data.UserConfigs[r.data.CurrentUser.ConfigID]; !ok {
		r.logger.Warn("active config missing, reverting to default", "config", r.data.CurrentUser.ConfigID)
		r.activate(types.DefaultConfigID)
		return true
	}
	if r.flagsInconsistent() {
		r.activate(r.data.CurrentUser.ConfigID)
		repaired = true
	}
	return repaired
}

func (r *Registry) flagsInconsistent() bool {
	current := r.data.CurrentUser.ConfigID
	for id, cfg := range r.data.UserConfigs {
		if cfg.IsActive != (id == current) {
			return true
		}
	}
	want := currentUserFor(r.data.UserConfigs[current])
	return r.data.CurrentUser != want
}

// Upsert adds cfg or replaces the entry with the same id, keeping the
// original CreatedAt. The active flag follows the current selection.
func (r *Registry) Upsert(cfg types.UserConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if old, ok := r.data.UserConfigs[cfg.ConfigID]; ok && !old.CreatedAt.IsZero() {
		cfg.CreatedAt = old.CreatedAt
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = r.now().UTC()
	}
	if cfg.ConfigID == types.DefaultConfigID && cfg.Kind() != types.KindLocal {
		return fmt.Errorf("%w: default config must be local", types.ErrInvalidOperation)
	}
	cfg.IsActive = cfg.ConfigID == r.data.CurrentUser.ConfigID
	r.data.UserConfigs[cfg.ConfigID] = cfg
	if cfg.IsActive {
		r.data.CurrentUser = currentUserFor(cfg)
	}
	return nil
}

// Remove deletes a configuration. The default and the active configuration
// cannot be removed.
func (r *Registry) Remove(id string) error {
	if err := r.CheckRemovable(id); err != nil {
		return err
	}
	delete(r.data.UserConfigs, id)
	return nil
}

// CheckRemovable returns the error Remove would return for id, without
// removing anything.
func (r *Registry) CheckRemovable(id string) error {
	if id == types.DefaultConfigID {
		return fmt.Errorf("%w: the default config cannot be deleted", types.ErrInvalidOperation)
	}
	if id == r.data.CurrentUser.ConfigID {
		return fmt.Errorf("%w: switch away from %q before deleting it", types.ErrInvalidOperation, id)
	}
	if _, ok := r.data.UserConfigs[id]; !ok {
		return fmt.Errorf("%w: %s", types.ErrConfigNotFound, id)
	}
	return nil
}

// SetActive makes id the active configuration.
func (r *Registry) SetActive(id string) error {
	if _, ok := r.data.UserConfigs[id]; !ok {
		return fmt.Errorf("%w: %s", types.ErrConfigNotFound, id)
	}
	r.activate(id)
	return nil
}

func (r *Registry) activate(id string) {
	for cid, cfg := range r.data.UserConfigs {
		cfg.IsActive = cid == id
		r.data.UserConfigs[cid] = cfg
	}
	r.data.CurrentUser = currentUserFor(r.data.UserConfigs[id])
	if r.data.CurrentUser.ConfigID == "" {
		r.data.CurrentUser = types.CurrentUser{ConfigID: id, UserID: id}
	}
}

func currentUserFor(cfg types.UserConfig) types.CurrentUser {
	if cfg.ConfigID == "" {
		return types.CurrentUser{}
	}
	userID := cfg.ConfigID
	if loc, ok := cfg.Location.(types.RemoteLocation); ok {
		userID = loc.UserID
	}
	return types.CurrentUser{ConfigID: cfg.ConfigID, DisplayName: cfg.DisplayName, UserID: userID}
}

// Get returns the configuration with id.
func (r *Registry) Get(id string) (types.UserConfig, bool) {
	cfg, ok := r.data.UserConfigs[id]
	return cfg, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.data.UserConfigs[id]
	return ok
}

// Current returns the active configuration. After Validate it always exists.
func (r *Registry) Current() types.UserConfig {
	return r.data.UserConfigs[r.data.CurrentUser.ConfigID]
}

// CurrentID returns the active configuration id.
func (r *Registry) CurrentID() string { return r.data.CurrentUser.ConfigID }

// Configs lists configurations, default first, then by display name and id.
func (r *Registry) Configs() []types.UserConfig {
	out := make([]types.UserConfig, 0, len(r.data.UserConfigs))
	for _, cfg := range r.data.UserConfigs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.ConfigID == types.DefaultConfigID) != (b.ConfigID == types.DefaultConfigID) {
			return a.ConfigID == types.DefaultConfigID
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.ConfigID < b.ConfigID
	})
	return out
}

// Snapshot returns a copy of the registry state.
func (r *Registry) Snapshot() types.AppData { return r.data.Clone() }

// Pagination returns the stored pagination settings.
func (r *Registry) Pagination() types.PaginationSettings { return r.data.PaginationSettings }

// SetPagination replaces the pagination settings.
func (r *Registry) SetPagination(p types.PaginationSettings) error {
	if p.ShortcutsPerPage <= 0 {
		return fmt.Errorf("%w: shortcuts per page must be positive", types.ErrValidation)
	}
	r.data.PaginationSettings = p
	return nil
}

// Persist writes the registry to the local area.
func (r *Registry) Persist(ctx context.Context) error {
	raw, err := json.Marshal(r.data)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := r.local.Set(ctx, map[string]json.RawMessage{types.AppDataKey: raw}); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}

func (r *Registry) stampCreated(id string) {
	cfg, ok := r.data.UserConfigs[id]
	if ok && cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = r.now().UTC()
		r.data.UserConfigs[id] = cfg
	}
}
