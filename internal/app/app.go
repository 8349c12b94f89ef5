// Package app owns the process-wide state: the storage backend, the data
// manager, the save coordinator and the domain managers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/tabshelf/internal/board"
	"github.com/mesh-intelligence/tabshelf/internal/datamgr"
	"github.com/mesh-intelligence/tabshelf/internal/remote"
	"github.com/mesh-intelligence/tabshelf/internal/savecoord"
	"github.com/mesh-intelligence/tabshelf/internal/sqlite"
	"github.com/mesh-intelligence/tabshelf/internal/watch"
)

// Options configures Open.
type Options struct {
	Storage       sqlite.Config
	Remote        remote.Options
	CacheTTL      time.Duration
	RetryAttempts int
	Logger        *slog.Logger
	Now           func() time.Time
}

// App is an opened tabshelf instance.
type App struct {
	Backend *sqlite.Backend
	Data    *datamgr.Manager
	Saves   *savecoord.Coordinator
	Board   *board.Board
	Logger  *slog.Logger
}

// Open attaches storage and initializes the data manager.
func Open(ctx context.Context, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	backend := sqlite.NewBackend()
	if err := backend.Attach(opts.Storage); err != nil {
		return nil, fmt.Errorf("attach storage: %w", err)
	}

	m, err := datamgr.New(datamgr.Options{
		Sync:          backend.Sync(),
		Local:         backend.Local(),
		OpenRemote:    remote.Opener(opts.Remote),
		Logger:        opts.Logger,
		Now:           opts.Now,
		CacheTTL:      opts.CacheTTL,
		RetryAttempts: opts.RetryAttempts,
	})
	if err != nil {
		backend.Detach()
		return nil, err
	}
	if err := m.Init(ctx); err != nil {
		backend.Detach()
		return nil, fmt.Errorf("init data manager: %w", err)
	}

	saves, err := savecoord.New(savecoord.Options{Store: m, Logger: opts.Logger, Now: opts.Now})
	if err != nil {
		m.Close()
		backend.Detach()
		return nil, err
	}

	opts.Logger.Debug("opened storage", "path", backend.Path())
	return &App{
		Backend: backend,
		Data:    m,
		Saves:   saves,
		Board:   board.New(m, saves, m),
		Logger:  opts.Logger,
	}, nil
}

// Watch calls HandleExternalChange whenever another process commits to
// the database, until ctx is done. Bursts caused by this process's own
// writes are skipped by comparing SQLite's data version.
func (a *App) Watch(ctx context.Context, debounce time.Duration) error {
	w, err := watch.New(filepath.Dir(a.Backend.Path()), watch.Options{
		Base:     sqlite.DBFileName,
		Debounce: debounce,
		Logger:   a.Logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	seen, err := a.Backend.DataVersion(ctx)
	if err != nil {
		return err
	}
	return w.Run(ctx, func(ctx context.Context) error {
		v, err := a.Backend.DataVersion(ctx)
		if err != nil {
			return err
		}
		if v == seen {
			return nil
		}
		seen = v
		data, err := a.Data.HandleExternalChange(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info("reloaded after external change",
			"config", a.Data.CurrentConfig().ConfigID, "categories", len(data.Categories))
		return nil
	})
}

// Close releases the remote client and detaches storage.
func (a *App) Close() error {
	return errors.Join(a.Data.Close(), a.Backend.Detach())
}
