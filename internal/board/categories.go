package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/tabshelf/internal/savecoord"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// MaxNameLength bounds category and shortcut names, in runes.
const MaxNameLength = 100

// CategoryPalette is cycled through for categories added without a colour.
var CategoryPalette = []string{"#4a90d9", "#50b86c", "#e0803c", "#9b59b6", "#e74c3c", "#16a085"}

// Categories edits the category list.
type Categories struct {
	b *Board
}

// List returns the categories in display order.
func (c *Categories) List(ctx context.Context) ([]types.Category, error) {
	data, err := c.b.load(ctx)
	if err != nil {
		return nil, err
	}
	return data.Categories, nil
}

// Add appends a category. An empty color picks the next palette entry.
func (c *Categories) Add(ctx context.Context, name, color string) (types.Category, error) {
	name, err := cleanName(name)
	if err != nil {
		return types.Category{}, err
	}
	data, err := c.b.load(ctx)
	if err != nil {
		return types.Category{}, err
	}
	id, err := c.b.newID()
	if err != nil {
		return types.Category{}, err
	}
	if color == "" {
		color = CategoryPalette[len(data.Categories)%len(CategoryPalette)]
	}
	cat := types.Category{
		ID:        id,
		Name:      name,
		Color:     color,
		Order:     nextCategoryOrder(data.Categories),
		Shortcuts: []types.Shortcut{},
	}
	data.Categories = append(data.Categories, cat)
	if err := c.b.saveBoard(ctx, data, savecoord.SourceCategoryManager); err != nil {
		return types.Category{}, err
	}
	return cat, nil
}

// Rename changes a category's name.
func (c *Categories) Rename(ctx context.Context, id, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return c.update(ctx, id, func(cat *types.Category) { cat.Name = name })
}

// SetColor changes a category's colour.
func (c *Categories) SetColor(ctx context.Context, id, color string) error {
	if strings.TrimSpace(color) == "" {
		return fmt.Errorf("%w: color must not be empty", types.ErrValidation)
	}
	return c.update(ctx, id, func(cat *types.Category) { cat.Color = color })
}

// ToggleCollapsed flips a category's collapsed flag and returns the new
// value.
func (c *Categories) ToggleCollapsed(ctx context.Context, id string) (bool, error) {
	var collapsed bool
	err := c.update(ctx, id, func(cat *types.Category) {
		cat.Collapsed = !cat.Collapsed
		collapsed = cat.Collapsed
	})
	return collapsed, err
}

// Delete removes a category and its shortcuts.
func (c *Categories) Delete(ctx context.Context, id string) error {
	data, err := c.b.load(ctx)
	if err != nil {
		return err
	}
	i := data.FindCategory(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", types.ErrCategoryNotFound, id)
	}
	data.Categories = append(data.Categories[:i], data.Categories[i+1:]...)
	renumberCategories(data.Categories)
	return c.b.saveBoard(ctx, data, savecoord.SourceCategoryManager)
}

// Reorder places the listed categories first, in the given order. Unlisted
// categories follow in their current order.
func (c *Categories) Reorder(ctx context.Context, ids []string) error {
	data, err := c.b.load(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(ids))
	out := make([]types.Category, 0, len(data.Categories))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: category %s listed twice", types.ErrValidation, id)
		}
		seen[id] = true
		i := data.FindCategory(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", types.ErrCategoryNotFound, id)
		}
		out = append(out, data.Categories[i])
	}
	for _, cat := range data.Categories {
		if !seen[cat.ID] {
			out = append(out, cat)
		}
	}
	renumberCategories(out)
	data.Categories = out
	return c.b.saveBoard(ctx, data, savecoord.SourceCategoryManager)
}

func (c *Categories) update(ctx context.Context, id string, fn func(*types.Category)) error {
	data, err := c.b.load(ctx)
	if err != nil {
		return err
	}
	cat, err := c.b.category(data, id)
	if err != nil {
		return err
	}
	fn(cat)
	return c.b.saveBoard(ctx, data, savecoord.SourceCategoryManager)
}

func nextCategoryOrder(cats []types.Category) int {
	next := 0
	for _, c := range cats {
		if c.Order >= next {
			next = c.Order + 1
		}
	}
	return next
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name must not be empty", types.ErrInvalidName)
	}
	if len([]rune(name)) > MaxNameLength {
		return "", fmt.Errorf("%w: name longer than %d characters", types.ErrInvalidName, MaxNameLength)
	}
	return name, nil
}
