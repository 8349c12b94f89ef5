package datamgr

import (
	"fmt"
	"time"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// StarterSource marks the built-in starter dataset.
const StarterSource = "defaults"

type starterCategory struct {
	name      string
	color     string
	shortcuts [][2]string
}

var starterCategories = []starterCategory{
	{
		name:  "Search & Reference",
		color: "#4a90d9",
		shortcuts: [][2]string{
			{"Google", "https://www.google.com"},
			{"Wikipedia", "https://www.wikipedia.org"},
			{"DuckDuckGo", "https://duckduckgo.com"},
		},
	},
	{
		name:  "Development",
		color: "#50b86c",
		shortcuts: [][2]string{
			{"GitHub", "https://github.com"},
			{"Stack Overflow", "https://stackoverflow.com"},
			{"Go Packages", "https://pkg.go.dev"},
		},
	},
	{
		name:  "News & Media",
		color: "#e0803c",
		shortcuts: [][2]string{
			{"Hacker News", "https://news.ycombinator.com"},
			{"Reddit", "https://www.reddit.com"},
			{"YouTube", "https://www.youtube.com"},
		},
	},
}

// StarterData returns the dataset served for a configuration whose backend
// holds nothing. Ids are stable so repeated calls yield equal data.
func StarterData(now time.Time) *types.ConfigData {
	cats := make([]types.Category, 0, len(starterCategories))
	for i, sc := range starterCategories {
		cat := types.Category{
			ID:        fmt.Sprintf("starter-cat-%d", i+1),
			Name:      sc.name,
			Color:     sc.color,
			Order:     i,
			Shortcuts: make([]types.Shortcut, 0, len(sc.shortcuts)),
		}
		for j, s := range sc.shortcuts {
			cat.Shortcuts = append(cat.Shortcuts, types.Shortcut{
				ID:        fmt.Sprintf("starter-sc-%d-%d", i+1, j+1),
				Name:      s[0],
				URL:       s[1],
				IconType:  types.IconLetter,
				IconColor: sc.color,
				Order:     j,
			})
		}
		cats = append(cats, cat)
	}
	return &types.ConfigData{
		Categories:    cats,
		Settings:      &types.Settings{ViewMode: types.ViewGrid},
		ThemeSettings: &types.ThemeSettings{Theme: "light"},
		Metadata:      &types.Metadata{LastModified: now.UTC(), Source: StarterSource},
	}
}
