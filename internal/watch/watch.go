// Package watch reports changes other processes make to the storage
// database, the local equivalent of a storage-changed notification.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of writes one transaction produces.
const DefaultDebounce = 250 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Base is the database file name. Its -wal and -journal siblings are
	// watched too.
	Base     string
	Debounce time.Duration
	// Settle is how long events are ignored after the callback returns, so
	// the callback's own writes do not trigger it again. Defaults to
	// Debounce.
	Settle time.Duration
	Logger *slog.Logger
}

// Watcher watches one directory for writes to the database files.
type Watcher struct {
	dir  string
	opts Options
	fsw  *fsnotify.Watcher
}

// New starts watching dir. Call Run to receive notifications and Close to
// release the watch.
func New(dir string, opts Options) (*Watcher, error) {
	if opts.Base == "" {
		return nil, fmt.Errorf("watch: database file name is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Settle <= 0 {
		opts.Settle = opts.Debounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, opts: opts, fsw: fsw}, nil
}

// Run calls onChange once per burst of changes until ctx is done. Callback
// errors are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	pending := false
	var quietUntil time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) || time.Now().Before(quietUntil) {
				continue
			}
			w.opts.Logger.Debug("storage changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			if pending {
				timer.Stop()
			}
			timer.Reset(w.opts.Debounce)
			pending = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn("watch error", "dir", w.dir, "error", err)

		case <-timer.C:
			pending = false
			if err := onChange(ctx); err != nil {
				w.opts.Logger.Warn("change handler failed", "error", err)
			}
			quietUntil = time.Now().Add(w.opts.Settle)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(ev.Name)
	if !strings.HasPrefix(name, w.opts.Base) {
		return false
	}
	switch strings.TrimPrefix(name, w.opts.Base) {
	case "", "-wal", "-journal":
		return true
	}
	return false
}
