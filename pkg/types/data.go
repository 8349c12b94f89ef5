package types

import (
	"encoding/json"
	"sort"
	"time"
)

// ViewMode selects how shortcuts are laid out.
type ViewMode string

// Supported view modes.
const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

// IconType selects how a shortcut's icon is drawn.
type IconType string

// Supported icon types.
const (
	IconLetter  IconType = "letter"
	IconFavicon IconType = "favicon"
	IconCustom  IconType = "custom"
)

// Shortcut is a single link inside a category. It is owned by exactly one
// category.
type Shortcut struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	IconType  IconType `json:"iconType"`
	IconColor string   `json:"iconColor"`
	IconURL   string   `json:"iconUrl"`
	Order     int      `json:"order"`
}

// Category is a card grouping shortcuts. Order sets display sequence; values
// need not be contiguous.
type Category struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Color     string     `json:"color"`
	Collapsed bool       `json:"collapsed"`
	Order     int        `json:"order"`
	Shortcuts []Shortcut `json:"shortcuts"`
}

// Settings holds dashboard-wide display settings.
type Settings struct {
	ViewMode ViewMode `json:"viewMode"`
}

// ThemeSettings holds theming and background state. The background pointers
// are always written so a cleared background is stored as null.
type ThemeSettings struct {
	Theme               string  `json:"theme,omitempty"`
	BackgroundImageURL  *string `json:"backgroundImageUrl"`
	BackgroundImagePath *string `json:"backgroundImagePath"`
	BackgroundOpacity   *int    `json:"backgroundOpacity,omitempty"`
}

// CacheMetadata is stamped on data held in the per-configuration cache.
type CacheMetadata struct {
	CachedAt  time.Time `json:"cachedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsValid   bool      `json:"isValid"`
}

// Usable reports whether a cache envelope may be served at now.
func (m *CacheMetadata) Usable(now time.Time) bool {
	return m != nil && m.IsValid && now.Before(m.ExpiresAt)
}

// Metadata records provenance of a ConfigData.
type Metadata struct {
	LastModified time.Time      `json:"lastModified"`
	Source       string         `json:"source,omitempty"`
	MergedBy     string         `json:"mergedBy,omitempty"`
	Cache        *CacheMetadata `json:"cacheMetadata,omitempty"`
}

// ConfigData is the dataset of one configuration. Nil fields are absent,
// which lets a partial payload name only the fields it owns. An empty
// non-nil category list is written as [].
type ConfigData struct {
	Categories    []Category     `json:"categories,omitzero"`
	Settings      *Settings      `json:"settings,omitempty"`
	ThemeSettings *ThemeSettings `json:"themeSettings,omitempty"`
	Metadata      *Metadata      `json:"_metadata,omitempty"`
}

// Clone returns a deep copy. A nil receiver yields nil.
func (d *ConfigData) Clone() *ConfigData {
	if d == nil {
		return nil
	}
	out := &ConfigData{}
	if d.Categories != nil {
		out.Categories = make([]Category, len(d.Categories))
		for i, c := range d.Categories {
			out.Categories[i] = c
			if c.Shortcuts != nil {
				out.Categories[i].Shortcuts = append([]Shortcut{}, c.Shortcuts...)
			}
		}
	}
	if d.Settings != nil {
		s := *d.Settings
		out.Settings = &s
	}
	if d.ThemeSettings != nil {
		out.ThemeSettings = d.ThemeSettings.Clone()
	}
	if d.Metadata != nil {
		m := *d.Metadata
		if d.Metadata.Cache != nil {
			c := *d.Metadata.Cache
			m.Cache = &c
		}
		out.Metadata = &m
	}
	return out
}

// Clone returns a deep copy of the theme settings.
func (t *ThemeSettings) Clone() *ThemeSettings {
	if t == nil {
		return nil
	}
	out := *t
	if t.BackgroundImageURL != nil {
		v := *t.BackgroundImageURL
		out.BackgroundImageURL = &v
	}
	if t.BackgroundImagePath != nil {
		v := *t.BackgroundImagePath
		out.BackgroundImagePath = &v
	}
	if t.BackgroundOpacity != nil {
		v := *t.BackgroundOpacity
		out.BackgroundOpacity = &v
	}
	return &out
}

// LastModified returns the metadata timestamp, or the zero time.
func (d *ConfigData) LastModified() time.Time {
	if d == nil || d.Metadata == nil {
		return time.Time{}
	}
	return d.Metadata.LastModified
}

// FindCategory returns the index of the category with id, or -1.
func (d *ConfigData) FindCategory(id string) int {
	if d == nil {
		return -1
	}
	for i := range d.Categories {
		if d.Categories[i].ID == id {
			return i
		}
	}
	return -1
}

// SortCategories orders categories and their shortcuts by Order. Ties keep
// insertion order.
func SortCategories(cats []Category) {
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Order < cats[j].Order })
	for i := range cats {
		sc := cats[i].Shortcuts
		sort.SliceStable(sc, func(a, b int) bool { return sc[a].Order < sc[b].Order })
	}
}

// DecodeConfigData parses a stored ConfigData document.
func DecodeConfigData(raw json.RawMessage) (*ConfigData, error) {
	var d ConfigData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
