// Package board holds the domain managers that edit dashboard data:
// categories, shortcuts, display settings and theme. Each reads the active
// configuration's data and writes back through the save coordinator under
// its own source name, so a smart merge only touches the fields it owns.
package board

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/tabshelf/internal/savecoord"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// Reader returns the active configuration's data.
type Reader interface {
	CurrentConfigData(ctx context.Context) (*types.ConfigData, error)
}

// Saver persists a write. *savecoord.Coordinator satisfies it.
type Saver interface {
	SaveData(ctx context.Context, data *types.ConfigData, opts savecoord.SaveOptions) (savecoord.Result, error)
}

// Uploader stores files in the active configuration's remote store.
type Uploader interface {
	UploadFile(ctx context.Context, r io.Reader, bucket, path string) (types.UploadResult, error)
}

// Board groups the domain managers over one data source.
type Board struct {
	data  Reader
	saver Saver
	files Uploader
	newID func() (string, error)

	categories *Categories
	shortcuts  *Shortcuts
	settings   *Settings
	theme      *Theme
}

// New wires the managers. files may be nil when uploads are not needed.
func New(data Reader, saver Saver, files Uploader) *Board {
	b := &Board{data: data, saver: saver, files: files, newID: newUUIDv7}
	b.categories = &Categories{b: b}
	b.shortcuts = &Shortcuts{b: b}
	b.settings = &Settings{b: b}
	b.theme = &Theme{b: b}
	return b
}

func (b *Board) Categories() *Categories { return b.categories }
func (b *Board) Shortcuts() *Shortcuts   { return b.shortcuts }
func (b *Board) Settings() *Settings     { return b.settings }
func (b *Board) Theme() *Theme           { return b.theme }

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

// load returns a private copy of the current data with the board fields
// present.
func (b *Board) load(ctx context.Context) (*types.ConfigData, error) {
	data, err := b.data.CurrentConfigData(ctx)
	if err != nil {
		return nil, err
	}
	data = data.Clone()
	if data == nil {
		data = &types.ConfigData{}
	}
	if data.Categories == nil {
		data.Categories = []types.Category{}
	}
	if data.Settings == nil {
		data.Settings = &types.Settings{ViewMode: types.ViewGrid}
	}
	types.SortCategories(data.Categories)
	return data, nil
}

// saveBoard writes the category list and settings as source.
func (b *Board) saveBoard(ctx context.Context, data *types.ConfigData, source string) error {
	_, err := b.saver.SaveData(ctx, &types.ConfigData{
		Categories: data.Categories,
		Settings:   data.Settings,
	}, savecoord.SaveOptions{Source: source})
	return err
}

func (b *Board) category(data *types.ConfigData, id string) (*types.Category, error) {
	i := data.FindCategory(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrCategoryNotFound, id)
	}
	return &data.Categories[i], nil
}

func renumberCategories(cats []types.Category) {
	for i := range cats {
		cats[i].Order = i
	}
}

func renumberShortcuts(scs []types.Shortcut) {
	for i := range scs {
		scs[i].Order = i
	}
}
