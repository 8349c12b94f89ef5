package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startWatcher(t *testing.T, dir string, onChange func(context.Context) error) (cancel func(), done <-chan error) {
	t.Helper()
	w, err := New(dir, Options{Base: "store.db", Debounce: 50 * time.Millisecond, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ctx, stop := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, onChange) }()
	return stop, errc
}

func TestWatcherCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	cancel, done := startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	path := filepath.Join(dir, "store.db")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	cancel, done := startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "store.db.bak"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "store.db-wal"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcherKeepsRunningAfterHandlerError(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	cancel, done := startWatcher(t, dir, func(context.Context) error {
		calls.Add(1)
		return errors.New("reload failed")
	})

	path := filepath.Join(dir, "store.db")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestNewValidation(t *testing.T) {
	_, err := New(t.TempDir(), Options{})
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing"), Options{Base: "store.db"})
	assert.Error(t, err)
}

func TestRelevant(t *testing.T) {
	w := &Watcher{opts: Options{Base: "store.db"}}
	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"store.db", fsnotify.Write, true},
		{"store.db-wal", fsnotify.Write, true},
		{"store.db-journal", fsnotify.Create, true},
		{"store.db-shm", fsnotify.Write, false},
		{"store.db", fsnotify.Chmod, false},
		{"store.db", fsnotify.Remove, false},
		{"other.db", fsnotify.Write, false},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.op.String(), func(t *testing.T) {
			ev := fsnotify.Event{Name: filepath.Join("/data", tt.name), Op: tt.op}
			assert.Equal(t, tt.want, w.relevant(ev))
		})
	}
}
