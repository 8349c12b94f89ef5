// Package datamgr is the unified data manager: it answers what the active
// configuration's data is and persists new data for it, hiding which
// backend holds that configuration.
//
// Every public method holds one mutex for its whole duration, so operations
// never interleave.
package datamgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/tabshelf/internal/cache"
	"github.com/mesh-intelligence/tabshelf/internal/registry"
	"github.com/mesh-intelligence/tabshelf/internal/remote"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// Source names stamped into metadata by the manager itself.
const (
	DefaultSource      = "unified-data-manager"
	CloudSeedSource    = "cloud-seed"
	CloudDisableSource = "cloud-disable"
)

// DefaultCloudDisplayName names a cloud configuration added without a name.
const DefaultCloudDisplayName = "Cloud Sync"

// ErrNotInitialized is returned by operations that need Init first.
var ErrNotInitialized = errors.New("data manager is not initialized")

// RemoteOpener builds an uninitialized remote client for creds.
type RemoteOpener func(creds types.RemoteCredentials) (types.RemoteStore, error)

// Options configures a Manager. Sync and Local are required.
type Options struct {
	Sync  types.StorageArea
	Local types.StorageArea

	// OpenRemote defaults to remote.Opener with default options.
	OpenRemote RemoteOpener
	Logger     *slog.Logger
	Now        func() time.Time
	CacheTTL   time.Duration
	// RetryAttempts is the number of reconnect-and-retry rounds for remote
	// connection errors. Zero means remote.DefaultRetryAttempts; negative
	// disables retries.
	RetryAttempts int
}

// Manager owns the registry, the cache, the remote client and the
// in-memory snapshot of the active configuration's data.
type Manager struct {
	mu sync.Mutex

	sync          types.StorageArea
	local         types.StorageArea
	openRemote    RemoteOpener
	logger        *slog.Logger
	now           func() time.Time
	retryAttempts int

	registry *registry.Registry
	cache    *cache.Cache
	remote   types.RemoteStore
	settings types.RemoteSettings

	current     *types.ConfigData
	initialized bool
}

// New returns a manager. Call Init before use.
func New(opts Options) (*Manager, error) {
	if opts.Sync == nil || opts.Local == nil {
		return nil, errors.New("datamgr: sync and local storage areas are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenRemote == nil {
		opts.OpenRemote = remote.Opener(remote.Options{})
	}
	switch {
	case opts.RetryAttempts == 0:
		opts.RetryAttempts = remote.DefaultRetryAttempts
	case opts.RetryAttempts < 0:
		opts.RetryAttempts = 0
	}

	reg := registry.New(opts.Local, opts.Sync, opts.Logger)
	reg.SetClock(opts.Now)
	return &Manager{
		sync:          opts.Sync,
		local:         opts.Local,
		openRemote:    opts.OpenRemote,
		logger:        opts.Logger,
		now:           opts.Now,
		retryAttempts: opts.RetryAttempts,
		registry:      reg,
		cache: cache.New(opts.Local,
			cache.WithTTL(opts.CacheTTL),
			cache.WithClock(opts.Now),
			cache.WithLogger(opts.Logger)),
	}, nil
}

// Init loads the registry, recovers and validates it, prepares the remote
// client when cloud sync is configured and loads the active data.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadStateLocked(ctx); err != nil {
		return err
	}
	m.prepareRemoteLocked(ctx)
	m.loadCurrentLocked(ctx, false)
	m.initialized = true
	return nil
}

// loadStateLocked reads the registry and remote settings and repairs the
// registry.
func (m *Manager) loadStateLocked(ctx context.Context) error {
	if _, err := m.registry.Load(ctx); err != nil {
		return err
	}
	m.settings = m.readRemoteSettings(ctx)
	changed := m.registry.RecoverRemoteConfig(m.settings)
	if m.registry.Validate() {
		changed = true
	}
	if changed {
		if err := m.registry.Persist(ctx); err != nil {
			m.logger.Warn("persist repaired registry failed", "error", err)
		}
	}
	return nil
}

func (m *Manager) readRemoteSettings(ctx context.Context) types.RemoteSettings {
	got, err := m.sync.Get(ctx, types.RemoteSettingsKey)
	if err != nil {
		m.logger.Warn("read remote settings failed", "error", err)
		return types.RemoteSettings{}
	}
	raw, ok := got[types.RemoteSettingsKey]
	if !ok {
		return types.RemoteSettings{}
	}
	var settings types.RemoteSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		m.logger.Warn("remote settings unreadable", "error", err)
		return types.RemoteSettings{}
	}
	return settings
}

func (m *Manager) writeRemoteSettings(ctx context.Context, settings types.RemoteSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return m.sync.Set(ctx, map[string]json.RawMessage{types.RemoteSettingsKey: raw})
}

// prepareRemoteLocked opens the remote client when cloud sync is enabled.
// Failure is logged; the manager works without a remote.
func (m *Manager) prepareRemoteLocked(ctx context.Context) {
	if m.remote != nil || !m.settings.Enabled || m.settings.URL == "" {
		return
	}
	userID := m.settings.UserID
	if loc, ok := m.registry.Current().Location.(types.RemoteLocation); ok {
		userID = loc.UserID
	}
	if _, err := m.remoteFor(ctx, userID); err != nil {
		m.logger.Warn("remote client unavailable", "error", err)
	}
}

// LoadCurrentConfigData returns the active configuration's data, from the
// cache unless forceRefresh is set or the cache misses. Backend failures
// degrade to the starter dataset and are logged, never returned.
func (m *Manager) LoadCurrentConfigData(ctx context.Context, forceRefresh bool) (*types.ConfigData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	return m.loadCurrentLocked(ctx, forceRefresh).Clone(), nil
}

// CurrentConfigData returns the in-memory snapshot, loading it if needed.
func (m *Manager) CurrentConfigData(ctx context.Context) (*types.ConfigData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	if m.current == nil {
		m.loadCurrentLocked(ctx, false)
	}
	return m.current.Clone(), nil
}

func (m *Manager) loadCurrentLocked(ctx context.Context, forceRefresh bool) *types.ConfigData {
	cfg := m.registry.Current()
	log := m.logger.With("config", cfg.ConfigID, "kind", cfg.Kind())

	if !forceRefresh {
		data, err := m.cache.Get(ctx, cfg.ConfigID)
		if err != nil {
			log.Warn("cache read failed", "error", err)
		}
		if data != nil {
			log.Debug("cache hit")
			m.current = data
			return m.current
		}
	}

	b, err := m.backendFor(ctx, cfg)
	if err != nil {
		log.Warn("no backend for config, serving defaults", "error", err)
		m.current = StarterData(m.now())
		return m.current
	}
	data, err := b.load(ctx)
	switch {
	case err != nil:
		log.Warn("backend read failed, serving defaults", "error", err)
		m.current = StarterData(m.now())
		return m.current
	case data == nil:
		log.Info("backend empty, seeding starter data")
		data = StarterData(m.now())
	}
	if err := m.cache.Put(ctx, cfg.ConfigID, data); err != nil {
		log.Warn("cache write failed", "error", err)
	}
	m.current = data
	return m.current
}

// SaveCurrentConfigData writes data for the active configuration, then
// refreshes the cache and the snapshot. Connection failures wrap
// types.ErrConnection; everything else wraps types.ErrBackendWrite.
func (m *Manager) SaveCurrentConfigData(ctx context.Context, data *types.ConfigData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return ErrNotInitialized
	}
	return m.saveLocked(ctx, m.registry.Current(), data)
}

func (m *Manager) saveLocked(ctx context.Context, cfg types.UserConfig, data *types.ConfigData) error {
	if data == nil {
		return fmt.Errorf("%w: no data to save", types.ErrValidation)
	}
	out := cache.StripMetadata(data)
	if out.Metadata == nil {
		out.Metadata = &types.Metadata{}
	}
	out.Metadata.LastModified = m.now().UTC()
	if out.Metadata.Source == "" {
		out.Metadata.Source = DefaultSource
	}

	b, err := m.backendFor(ctx, cfg)
	if err != nil {
		return writeError(cfg.ConfigID, err)
	}
	if err := b.save(ctx, out); err != nil {
		return writeError(cfg.ConfigID, err)
	}

	if err := m.cache.Invalidate(ctx, cfg.ConfigID); err != nil {
		m.logger.Warn("cache invalidate failed", "config", cfg.ConfigID, "error", err)
	}
	if err := m.cache.Put(ctx, cfg.ConfigID, out); err != nil {
		m.logger.Warn("cache write failed", "config", cfg.ConfigID, "error", err)
	}
	if cfg.ConfigID == m.registry.CurrentID() {
		m.current = out
	}
	m.logger.Debug("saved config data", "config", cfg.ConfigID, "source", out.Metadata.Source)
	return nil
}

func writeError(id string, err error) error {
	if errors.Is(err, types.ErrConnection) || errors.Is(err, types.ErrBackendWrite) {
		return fmt.Errorf("save %s: %w", id, err)
	}
	return fmt.Errorf("save %s: %w: %w", id, types.ErrBackendWrite, err)
}

// GetAllConfigs lists registered configurations, default first.
func (m *Manager) GetAllConfigs() []types.UserConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Configs()
}

// CurrentConfig returns the active configuration.
func (m *Manager) CurrentConfig() types.UserConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Current()
}

// AppData returns a copy of the registry.
func (m *Manager) AppData() types.AppData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Snapshot()
}

// RemoteSettings returns the stored cloud-sync settings.
func (m *Manager) RemoteSettings() types.RemoteSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// SetPagination stores pagination settings in the registry.
func (m *Manager) SetPagination(ctx context.Context, p types.PaginationSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.registry.SetPagination(p); err != nil {
		return err
	}
	return m.registry.Persist(ctx)
}

// SwitchConfig makes id active, discovering it first when unknown, and
// returns its data.
func (m *Manager) SwitchConfig(ctx context.Context, id string) (*types.ConfigData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	id = strings.TrimSpace(id)
	if !m.registry.Has(id) && !m.discoverLocked(ctx, id) {
		return nil, fmt.Errorf("%w: %s", types.ErrConfigNotFound, id)
	}
	return m.switchLocked(ctx, id)
}

func (m *Manager) switchLocked(ctx context.Context, id string) (*types.ConfigData, error) {
	if err := m.cache.InvalidateAllExcept(ctx, id); err != nil {
		m.logger.Warn("cache invalidation failed", "error", err)
	}
	if err := m.registry.SetActive(id); err != nil {
		return nil, err
	}
	if err := m.registry.Persist(ctx); err != nil {
		return nil, err
	}
	m.logger.Info("switched config", "config", id)
	return m.loadCurrentLocked(ctx, false).Clone(), nil
}

// DiscoverAndRegisterConfig tries to register an unknown id: the default
// id is local, an id with a cache entry is a known remote user, and
// otherwise the remote is asked for a record under id. The registry is only
// changed on success.
func (m *Manager) DiscoverAndRegisterConfig(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registry.Has(id) {
		return true
	}
	if !m.discoverLocked(ctx, id) {
		return false
	}
	if err := m.registry.Persist(ctx); err != nil {
		m.logger.Warn("persist discovered config failed", "config", id, "error", err)
	}
	return true
}

func (m *Manager) discoverLocked(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	log := m.logger.With("config", id)

	if id == types.DefaultConfigID {
		if err := m.registry.Upsert(types.DefaultUserConfig()); err != nil {
			return false
		}
		log.Info("registered default config")
		return true
	}

	cached, err := m.cache.Peek(ctx, id)
	if err != nil {
		log.Warn("cache lookup failed", "error", err)
	}
	if cached {
		if err := m.registry.Upsert(types.NewRemoteConfig(id, DefaultCloudDisplayName)); err != nil {
			return false
		}
		log.Info("registered remote config from cache")
		return true
	}

	data, ok := m.probeRemoteLocked(ctx, id)
	if !ok {
		return false
	}
	if err := m.registry.Upsert(types.NewRemoteConfig(id, DefaultCloudDisplayName)); err != nil {
		return false
	}
	if err := m.cache.Put(ctx, id, data); err != nil {
		log.Warn("cache write failed", "error", err)
	}
	log.Info("registered remote config from remote record")
	return true
}

// probeRemoteLocked points the remote client at id, loads its record and
// points the client back at its original target.
func (m *Manager) probeRemoteLocked(ctx context.Context, id string) (*types.ConfigData, bool) {
	if m.remote == nil && m.settings.URL == "" {
		return nil, false
	}
	original := types.RemoteCredentials{}
	if m.remote != nil {
		original = m.remote.Credentials()
	}
	store, err := m.remoteFor(ctx, id)
	if err != nil {
		m.logger.Warn("remote discovery unavailable", "config", id, "error", err)
		return nil, false
	}
	defer func() {
		if original.URL == "" {
			return
		}
		if err := store.Initialize(ctx, original, false); err != nil {
			m.logger.Warn("restore remote target failed", "error", err)
		}
	}()

	data, err := remoteBackend{store: store, policy: m.policy(store)}.load(ctx)
	if err != nil {
		m.logger.Warn("remote discovery failed", "config", id, "error", err)
		return nil, false
	}
	return data, data != nil
}

// AddCloudConfig verifies creds against the remote, stores them as the
// cloud-sync settings and registers (or reconnects) the configuration for
// creds.UserID. An empty remote record is seeded from the default
// configuration's data. The active configuration does not change.
func (m *Manager) AddCloudConfig(ctx context.Context, name string, creds types.RemoteCredentials) (types.UserConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return types.UserConfig{}, ErrNotInitialized
	}
	creds.URL = strings.TrimSpace(creds.URL)
	creds.UserID = strings.TrimSpace(creds.UserID)
	if err := remote.ValidateCredentials(creds); err != nil {
		return types.UserConfig{}, err
	}
	if creds.UserID == types.DefaultConfigID {
		return types.UserConfig{}, fmt.Errorf("%w: %q is reserved", types.ErrInvalidOperation, creds.UserID)
	}
	if strings.TrimSpace(name) == "" {
		name = DefaultCloudDisplayName
	}

	store, err := m.openRemote(creds)
	if err != nil {
		return types.UserConfig{}, err
	}
	if err := store.Initialize(ctx, creds, true); err != nil {
		_ = store.Close()
		return types.UserConfig{}, fmt.Errorf("verify remote: %w", err)
	}

	settings := types.RemoteSettings{RemoteCredentials: creds, Enabled: true}
	if err := m.writeRemoteSettings(ctx, settings); err != nil {
		_ = store.Close()
		return types.UserConfig{}, fmt.Errorf("%w: store remote settings: %w", types.ErrBackendWrite, err)
	}
	if m.remote != nil && m.remote != store {
		_ = m.remote.Close()
	}
	m.remote = store
	m.settings = settings

	cfg := types.NewRemoteConfig(creds.UserID, name)
	if err := m.registry.Upsert(cfg); err != nil {
		return types.UserConfig{}, err
	}
	if err := m.registry.Persist(ctx); err != nil {
		return types.UserConfig{}, err
	}
	if err := m.cache.Invalidate(ctx, cfg.ConfigID); err != nil {
		m.logger.Warn("cache invalidate failed", "config", cfg.ConfigID, "error", err)
	}

	m.seedRemoteLocked(ctx, store)

	if m.registry.CurrentID() == cfg.ConfigID {
		m.loadCurrentLocked(ctx, true)
	}
	added, _ := m.registry.Get(cfg.ConfigID)
	m.logger.Info("cloud config added", "config", cfg.ConfigID)
	return added, nil
}

// seedRemoteLocked copies the default configuration's data to an empty
// remote record. Failures are logged.
func (m *Manager) seedRemoteLocked(ctx context.Context, store types.RemoteStore) {
	rb := remoteBackend{store: store, policy: m.policy(store)}
	existing, err := rb.load(ctx)
	if err != nil {
		m.logger.Warn("remote check before seeding failed", "error", err)
		return
	}
	if existing != nil {
		return
	}

	def, _ := m.registry.Get(types.DefaultConfigID)
	seed := m.readConfigLocked(ctx, def)
	seed = cache.StripMetadata(seed)
	seed.Metadata = &types.Metadata{LastModified: m.now().UTC(), Source: CloudSeedSource}
	if err := rb.save(ctx, seed); err != nil {
		m.logger.Warn("seeding remote failed", "error", err)
		return
	}
	m.logger.Info("seeded remote from default config", "user", store.Credentials().UserID)
}

// readConfigLocked returns cfg's data from cache or backend, falling back
// to the starter dataset.
func (m *Manager) readConfigLocked(ctx context.Context, cfg types.UserConfig) *types.ConfigData {
	if data, err := m.cache.Get(ctx, cfg.ConfigID); err == nil && data != nil {
		return data
	}
	b, err := m.backendFor(ctx, cfg)
	if err == nil {
		data, err := b.load(ctx)
		if err == nil && data != nil {
			return data
		}
	}
	return StarterData(m.now())
}

// DisableCloudSync disables the stored settings and switches to the default
// configuration. When a remote configuration is active its data is pulled
// one last time and folded into the default configuration without
// background image references. A local active configuration keeps its data.
func (m *Manager) DisableCloudSync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return ErrNotInitialized
	}

	if loc, ok := m.registry.Current().Location.(types.RemoteLocation); ok {
		if data := m.pullRemoteLocked(ctx, loc.UserID); data != nil {
			if err := m.foldIntoDefaultLocked(ctx, data); err != nil {
				return err
			}
		}
	}

	settings := m.settings
	settings.Enabled = false
	if err := m.writeRemoteSettings(ctx, settings); err != nil {
		return fmt.Errorf("%w: store remote settings: %w", types.ErrBackendWrite, err)
	}
	m.settings = settings
	if m.remote != nil {
		_ = m.remote.Close()
		m.remote = nil
	}

	if _, err := m.switchLocked(ctx, types.DefaultConfigID); err != nil {
		return err
	}
	m.logger.Info("cloud sync disabled")
	return nil
}

func (m *Manager) pullRemoteLocked(ctx context.Context, userID string) *types.ConfigData {
	cfg, ok := m.registry.Get(userID)
	if !ok {
		cfg = types.NewRemoteConfig(userID, DefaultCloudDisplayName)
	}
	b, err := m.backendFor(ctx, cfg)
	if err != nil {
		m.logger.Warn("remote unavailable while disabling sync", "error", err)
		return nil
	}
	data, err := b.load(ctx)
	if err != nil {
		m.logger.Warn("final remote pull failed, keeping local data", "error", err)
		return nil
	}
	return data
}

func (m *Manager) foldIntoDefaultLocked(ctx context.Context, data *types.ConfigData) error {
	folded := cache.StripMetadata(data)
	if folded.ThemeSettings != nil {
		folded.ThemeSettings.BackgroundImageURL = nil
		folded.ThemeSettings.BackgroundImagePath = nil
	}
	folded.Metadata = &types.Metadata{Source: CloudDisableSource}

	def, _ := m.registry.Get(types.DefaultConfigID)
	if err := m.saveLocked(ctx, def, folded); err != nil {
		return err
	}
	return m.cache.Invalidate(ctx, types.DefaultConfigID)
}

// DeleteConfig removes a configuration that is neither default nor active.
// Remote data is deleted best-effort.
func (m *Manager) DeleteConfig(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return ErrNotInitialized
	}
	if err := m.registry.CheckRemovable(id); err != nil {
		return err
	}
	cfg, _ := m.registry.Get(id)
	if cfg.Kind() == types.KindRemote {
		if b, err := m.backendFor(ctx, cfg); err != nil {
			m.logger.Warn("remote unavailable, leaving remote data", "config", id, "error", err)
		} else if err := b.remove(ctx); err != nil {
			m.logger.Warn("remote delete failed", "config", id, "error", err)
		}
	}
	if err := m.cache.Invalidate(ctx, id); err != nil {
		m.logger.Warn("cache invalidate failed", "config", id, "error", err)
	}
	if err := m.registry.Remove(id); err != nil {
		return err
	}
	if err := m.registry.Persist(ctx); err != nil {
		return err
	}
	m.logger.Info("deleted config", "config", id)
	return nil
}

// UploadFile stores a file in the remote store of the active configuration.
func (m *Manager) UploadFile(ctx context.Context, r io.Reader, bucket, path string) (types.UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return types.UploadResult{}, ErrNotInitialized
	}
	loc, ok := m.registry.Current().Location.(types.RemoteLocation)
	if !ok {
		return types.UploadResult{}, fmt.Errorf("%w: uploads need a cloud config", types.ErrInvalidOperation)
	}
	store, err := m.remoteFor(ctx, loc.UserID)
	if err != nil {
		return types.UploadResult{}, err
	}
	return remoteBackend{store: store, policy: m.policy(store)}.upload(ctx, r, bucket, path)
}

// HandleExternalChange reloads state after another process changed the
// storage areas.
func (m *Manager) HandleExternalChange(ctx context.Context) (*types.ConfigData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	if err := m.loadStateLocked(ctx); err != nil {
		return nil, err
	}
	if m.remote != nil && m.remote.Credentials().URL != m.settings.URL {
		_ = m.remote.Close()
		m.remote = nil
	}
	force := m.registry.Current().Kind() == types.KindLocal
	return m.loadCurrentLocked(ctx, force).Clone(), nil
}

// Close releases the remote client.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remote == nil {
		return nil
	}
	err := m.remote.Close()
	m.remote = nil
	return err
}
