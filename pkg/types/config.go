package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultConfigID is the id of the built-in local configuration. It always
// exists and can never be deleted.
const DefaultConfigID = "default"

// Storage keys used in the local storage areas.
const (
	AppDataKey        = "tabshelf_app_data"
	RemoteSettingsKey = "tabshelf_remote_settings"
	DefaultDataKey    = "tabshelf_config_default"
	CacheKeyPrefix    = "tabshelf_cache_"
)

// Keys of the pre-profile layout, where the dashboard lived directly in the
// synced area.
const (
	LegacyCategoriesKey = "categories"
	LegacySettingsKey   = "settings"
	LegacyThemeKey      = "themeSettings"
)

// ConfigKind says which backend holds a configuration's data.
type ConfigKind string

// Supported configuration kinds.
const (
	KindLocal  ConfigKind = "local"
	KindRemote ConfigKind = "remote"
)

// Wire names written by older releases.
const (
	legacyKindChrome   = "chrome"
	legacyKindSupabase = "supabase"
)

// ParseConfigKind maps a wire name to a ConfigKind, accepting legacy names.
func ParseConfigKind(s string) (ConfigKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindLocal), legacyKindChrome:
		return KindLocal, nil
	case string(KindRemote), legacyKindSupabase:
		return KindRemote, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// AreaType selects one of the two local storage areas.
type AreaType string

// Storage areas. The sync area is small and travels with the user's profile;
// the local area is larger and machine-bound.
const (
	AreaSync  AreaType = "sync"
	AreaLocal AreaType = "local"
)

// Location is where a configuration's data is stored. It is a closed set:
// LocalLocation and RemoteLocation are the only implementations.
type Location interface {
	Kind() ConfigKind
	isLocation()
}

// LocalLocation stores data under Key in one of the local storage areas.
type LocalLocation struct {
	Key  string
	Area AreaType
}

// Kind implements Location.
func (LocalLocation) Kind() ConfigKind { return KindLocal }
func (LocalLocation) isLocation()      {}

// RemoteLocation stores data in the remote store record owned by UserID.
type RemoteLocation struct {
	UserID string
}

// Kind implements Location.
func (RemoteLocation) Kind() ConfigKind { return KindRemote }
func (RemoteLocation) isLocation()      {}

// UserConfig is one named configuration (profile).
type UserConfig struct {
	ConfigID    string
	DisplayName string
	Location    Location
	IsActive    bool
	CreatedAt   time.Time
}

// Kind returns the configuration's backend kind.
func (c UserConfig) Kind() ConfigKind {
	if c.Location == nil {
		return ""
	}
	return c.Location.Kind()
}

// NewLocalConfig builds a local configuration stored in the sync area.
func NewLocalConfig(id, displayName, key string) UserConfig {
	return UserConfig{
		ConfigID:    id,
		DisplayName: displayName,
		Location:    LocalLocation{Key: key, Area: AreaSync},
	}
}

// NewRemoteConfig builds a remote configuration whose id is the remote user id.
func NewRemoteConfig(userID, displayName string) UserConfig {
	return UserConfig{
		ConfigID:    userID,
		DisplayName: displayName,
		Location:    RemoteLocation{UserID: userID},
	}
}

// DefaultUserConfig returns the built-in default configuration.
func DefaultUserConfig() UserConfig {
	return NewLocalConfig(DefaultConfigID, "Default", DefaultDataKey)
}

// Configuration validation errors.
var (
	ErrConfigIDEmpty   = errors.New("config id must not be empty")
	ErrLocationMissing = errors.New("config storage location is missing")
	ErrStorageKeyEmpty = errors.New("local config storage key must not be empty")
	ErrRemoteUserEmpty = errors.New("remote config user id must not be empty")
)

// Validate checks that the configuration is well-formed.
func (c UserConfig) Validate() error {
	if strings.TrimSpace(c.ConfigID) == "" {
		return ErrConfigIDEmpty
	}
	switch loc := c.Location.(type) {
	case LocalLocation:
		if strings.TrimSpace(loc.Key) == "" {
			return ErrStorageKeyEmpty
		}
	case RemoteLocation:
		if strings.TrimSpace(loc.UserID) == "" {
			return ErrRemoteUserEmpty
		}
	case nil:
		return ErrLocationMissing
	default:
		return fmt.Errorf("%w: %T", ErrUnknownKind, loc)
	}
	return nil
}

type storageLocationJSON struct {
	Key          string   `json:"key,omitempty"`
	AreaType     AreaType `json:"areaType,omitempty"`
	RemoteUserID string   `json:"remoteUserId,omitempty"`
}

type userConfigJSON struct {
	ConfigID        string              `json:"configId"`
	DisplayName     string              `json:"displayName"`
	Type            string              `json:"type"`
	StorageLocation storageLocationJSON `json:"storageLocation"`
	IsActive        bool                `json:"isActive"`
	CreatedAt       time.Time           `json:"createdAt,omitzero"`
}

// MarshalJSON writes the flat wire shape with a type tag.
func (c UserConfig) MarshalJSON() ([]byte, error) {
	out := userConfigJSON{
		ConfigID:    c.ConfigID,
		DisplayName: c.DisplayName,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}
	switch loc := c.Location.(type) {
	case LocalLocation:
		out.Type = string(KindLocal)
		out.StorageLocation = storageLocationJSON{Key: loc.Key, AreaType: loc.Area}
	case RemoteLocation:
		out.Type = string(KindRemote)
		out.StorageLocation = storageLocationJSON{RemoteUserID: loc.UserID}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, c.Location)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the wire shape, including legacy type names.
func (c *UserConfig) UnmarshalJSON(data []byte) error {
	var in userConfigJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	kind, err := ParseConfigKind(in.Type)
	if err != nil {
		return err
	}
	*c = UserConfig{
		ConfigID:    in.ConfigID,
		DisplayName: in.DisplayName,
		IsActive:    in.IsActive,
		CreatedAt:   in.CreatedAt,
	}
	switch kind {
	case KindLocal:
		area := in.StorageLocation.AreaType
		if area == "" {
			area = AreaSync
		}
		c.Location = LocalLocation{Key: in.StorageLocation.Key, Area: area}
	case KindRemote:
		userID := in.StorageLocation.RemoteUserID
		if userID == "" {
			userID = in.ConfigID
		}
		c.Location = RemoteLocation{UserID: userID}
	}
	return nil
}

// CurrentUser records the active configuration.
type CurrentUser struct {
	ConfigID    string `json:"configId"`
	DisplayName string `json:"displayName"`
	UserID      string `json:"userId"`
}

// PaginationSettings controls how many shortcuts a card shows per page.
type PaginationSettings struct {
	Enabled          bool `json:"enabled"`
	ShortcutsPerPage int  `json:"shortcutsPerPage"`
}

// DefaultPagination is used when no pagination settings were stored.
var DefaultPagination = PaginationSettings{Enabled: false, ShortcutsPerPage: 12}

// AppData is the persistent registry of configurations.
type AppData struct {
	CurrentUser        CurrentUser           `json:"currentUser"`
	UserConfigs        map[string]UserConfig `json:"userConfigs"`
	PaginationSettings PaginationSettings    `json:"paginationSettings"`
}

// NewAppData returns a registry holding only the default configuration,
// marked active.
func NewAppData() AppData {
	def := DefaultUserConfig()
	def.IsActive = true
	return AppData{
		CurrentUser: CurrentUser{
			ConfigID:    def.ConfigID,
			DisplayName: def.DisplayName,
			UserID:      def.ConfigID,
		},
		UserConfigs:        map[string]UserConfig{def.ConfigID: def},
		PaginationSettings: DefaultPagination,
	}
}

// Clone returns a deep copy of the registry.
func (a AppData) Clone() AppData {
	out := a
	out.UserConfigs = make(map[string]UserConfig, len(a.UserConfigs))
	for id, cfg := range a.UserConfigs {
		out.UserConfigs[id] = cfg
	}
	return out
}

// CacheKey returns the local-area key holding the cache envelope for a
// configuration.
func CacheKey(configID string) string {
	return CacheKeyPrefix + configID
}
