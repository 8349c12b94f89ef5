package board

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/mesh-intelligence/tabshelf/internal/savecoord"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// BackgroundBucket holds uploaded background images.
const BackgroundBucket = "backgrounds"

// Settings edits dashboard-wide display settings.
type Settings struct {
	b *Board
}

// SetViewMode switches between grid and list layouts.
func (s *Settings) SetViewMode(ctx context.Context, mode types.ViewMode) error {
	if mode != types.ViewGrid && mode != types.ViewList {
		return fmt.Errorf("%w: unknown view mode %q", types.ErrValidation, mode)
	}
	data, err := s.b.load(ctx)
	if err != nil {
		return err
	}
	data.Settings.ViewMode = mode
	return s.b.saveBoard(ctx, data, savecoord.SourceSettingsManager)
}

// Theme edits theme and background state.
type Theme struct {
	b *Board
}

// Current returns the theme settings, or nil when none are stored.
func (t *Theme) Current(ctx context.Context) (*types.ThemeSettings, error) {
	data, err := t.b.data.CurrentConfigData(ctx)
	if err != nil || data == nil {
		return nil, err
	}
	return data.ThemeSettings.Clone(), nil
}

// SetTheme stores the theme name.
func (t *Theme) SetTheme(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: theme name must not be empty", types.ErrValidation)
	}
	return t.update(ctx, func(ts *types.ThemeSettings) { ts.Theme = name })
}

// SetBackgroundOpacity stores a percentage in [0,100].
func (t *Theme) SetBackgroundOpacity(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: opacity %d is outside 0..100", types.ErrValidation, percent)
	}
	return t.update(ctx, func(ts *types.ThemeSettings) { ts.BackgroundOpacity = types.IntPtr(percent) })
}

// SetBackgroundImage stores the background image location. Empty values
// clear it.
func (t *Theme) SetBackgroundImage(ctx context.Context, imageURL, imagePath string) error {
	return t.update(ctx, func(ts *types.ThemeSettings) {
		ts.BackgroundImageURL = optional(imageURL)
		ts.BackgroundImagePath = optional(imagePath)
	})
}

// UploadBackground stores an image in the active configuration's remote
// store and points the background at it. Only cloud configurations accept
// uploads.
func (t *Theme) UploadBackground(ctx context.Context, r io.Reader, name string) (types.UploadResult, error) {
	if t.b.files == nil {
		return types.UploadResult{}, fmt.Errorf("%w: uploads are not available", types.ErrInvalidOperation)
	}
	id, err := t.b.newID()
	if err != nil {
		return types.UploadResult{}, err
	}
	res, err := t.b.files.UploadFile(ctx, r, BackgroundBucket, path.Join(id, safeFileName(name)))
	if err != nil {
		return types.UploadResult{}, err
	}
	if err := t.SetBackgroundImage(ctx, res.URL, res.Path); err != nil {
		return res, err
	}
	return res, nil
}

func (t *Theme) update(ctx context.Context, fn func(*types.ThemeSettings)) error {
	data, err := t.b.data.CurrentConfigData(ctx)
	if err != nil {
		return err
	}
	var ts *types.ThemeSettings
	if data != nil {
		ts = data.ThemeSettings.Clone()
	}
	if ts == nil {
		ts = &types.ThemeSettings{}
	}
	fn(ts)
	_, err = t.b.saver.SaveData(ctx, &types.ConfigData{ThemeSettings: ts},
		savecoord.SaveOptions{Source: savecoord.SourceThemeManager})
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return types.StringPtr(s)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(path.Base(strings.TrimSpace(name)), "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		return "background"
	}
	return name
}
