package board

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"

	"github.com/mesh-intelligence/tabshelf/internal/savecoord"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// LetterPalette colours letter icons.
var LetterPalette = []string{"#f44336", "#e91e63", "#9c27b0", "#3f51b5", "#2196f3", "#009688", "#4caf50", "#ff9800", "#795548", "#607d8b"}

// Shortcuts edits the shortcuts inside categories.
type Shortcuts struct {
	b *Board
}

// Add appends sc to the category. ID and Order are assigned; the URL is
// normalized; an empty name falls back to the host; the icon defaults to a
// letter icon coloured from the name.
func (s *Shortcuts) Add(ctx context.Context, categoryID string, sc types.Shortcut) (types.Shortcut, error) {
	if err := prepareShortcut(&sc); err != nil {
		return types.Shortcut{}, err
	}
	data, err := s.b.load(ctx)
	if err != nil {
		return types.Shortcut{}, err
	}
	cat, err := s.b.category(data, categoryID)
	if err != nil {
		return types.Shortcut{}, err
	}
	if sc.ID, err = s.b.newID(); err != nil {
		return types.Shortcut{}, err
	}
	sc.Order = len(cat.Shortcuts)
	cat.Shortcuts = append(cat.Shortcuts, sc)
	if err := s.b.saveBoard(ctx, data, savecoord.SourceShortcutManager); err != nil {
		return types.Shortcut{}, err
	}
	return sc, nil
}

// Update replaces the editable fields of the shortcut with sc.ID.
func (s *Shortcuts) Update(ctx context.Context, categoryID string, sc types.Shortcut) (types.Shortcut, error) {
	if err := prepareShortcut(&sc); err != nil {
		return types.Shortcut{}, err
	}
	data, err := s.b.load(ctx)
	if err != nil {
		return types.Shortcut{}, err
	}
	cat, err := s.b.category(data, categoryID)
	if err != nil {
		return types.Shortcut{}, err
	}
	i := findShortcut(cat.Shortcuts, sc.ID)
	if i < 0 {
		return types.Shortcut{}, fmt.Errorf("%w: %s", types.ErrShortcutNotFound, sc.ID)
	}
	sc.Order = cat.Shortcuts[i].Order
	cat.Shortcuts[i] = sc
	if err := s.b.saveBoard(ctx, data, savecoord.SourceShortcutManager); err != nil {
		return types.Shortcut{}, err
	}
	return sc, nil
}

// Delete removes a shortcut.
func (s *Shortcuts) Delete(ctx context.Context, categoryID, id string) error {
	data, err := s.b.load(ctx)
	if err != nil {
		return err
	}
	cat, err := s.b.category(data, categoryID)
	if err != nil {
		return err
	}
	i := findShortcut(cat.Shortcuts, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", types.ErrShortcutNotFound, id)
	}
	cat.Shortcuts = append(cat.Shortcuts[:i], cat.Shortcuts[i+1:]...)
	renumberShortcuts(cat.Shortcuts)
	return s.b.saveBoard(ctx, data, savecoord.SourceShortcutManager)
}

// Move takes a shortcut out of one category and inserts it into another
// (or the same) at index. Out of range indexes clamp to the ends.
func (s *Shortcuts) Move(ctx context.Context, fromCategoryID, id, toCategoryID string, index int) error {
	data, err := s.b.load(ctx)
	if err != nil {
		return err
	}
	from, err := s.b.category(data, fromCategoryID)
	if err != nil {
		return err
	}
	if _, err := s.b.category(data, toCategoryID); err != nil {
		return err
	}
	i := findShortcut(from.Shortcuts, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", types.ErrShortcutNotFound, id)
	}
	sc := from.Shortcuts[i]
	from.Shortcuts = append(from.Shortcuts[:i], from.Shortcuts[i+1:]...)
	renumberShortcuts(from.Shortcuts)

	to, _ := s.b.category(data, toCategoryID)
	index = max(0, min(index, len(to.Shortcuts)))
	to.Shortcuts = append(to.Shortcuts, types.Shortcut{})
	copy(to.Shortcuts[index+1:], to.Shortcuts[index:])
	to.Shortcuts[index] = sc
	renumberShortcuts(to.Shortcuts)
	return s.b.saveBoard(ctx, data, savecoord.SourceShortcutManager)
}

func findShortcut(scs []types.Shortcut, id string) int {
	for i := range scs {
		if scs[i].ID == id {
			return i
		}
	}
	return -1
}

func prepareShortcut(sc *types.Shortcut) error {
	u, err := NormalizeURL(sc.URL)
	if err != nil {
		return err
	}
	sc.URL = u
	sc.Name = strings.TrimSpace(sc.Name)
	if sc.Name == "" {
		sc.Name = hostName(u)
	}
	if sc.Name, err = cleanName(sc.Name); err != nil {
		return err
	}
	switch sc.IconType {
	case "":
		sc.IconType = types.IconLetter
	case types.IconLetter, types.IconFavicon:
	case types.IconCustom:
		if sc.IconURL == "" {
			return fmt.Errorf("%w: custom icon needs an icon url", types.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown icon type %q", types.ErrValidation, sc.IconType)
	}
	if sc.IconType == types.IconLetter && sc.IconColor == "" {
		sc.IconColor = LetterColor(sc.Name)
	}
	return nil
}

// NormalizeURL trims raw and adds https:// when no scheme is given.
// Web URLs must name a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url must not be empty", types.ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") && !hasOpaqueScheme(raw) {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", types.ErrInvalidURL, raw)
	}
	return u.String(), nil
}

// hasOpaqueScheme reports URLs such as mailto:x or about:blank.
func hasOpaqueScheme(raw string) bool {
	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok || rest == "" || strings.ContainsAny(scheme, "./ ") {
		return false
	}
	switch strings.ToLower(scheme) {
	case "mailto", "about", "chrome", "file", "data", "javascript", "tel":
		return true
	}
	return false
}

func hostName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// LetterColor picks a stable palette colour for name.
func LetterColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(name)))
	return LetterPalette[h.Sum32()%uint32(len(LetterPalette))]
}
