package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// DBFileName is the database file created inside the data directory.
const DBFileName = "tabshelf.db"

// Default quotas. The sync area mirrors the browser vendor's limits; the
// local area is roomier because it holds caches and background payloads.
const (
	DefaultSyncQuotaBytes     = 102400
	DefaultSyncItemQuotaBytes = 8192
	DefaultLocalQuotaBytes    = 10 << 20
)

// Config holds the data directory and quotas for Attach. A zero quota
// disables that limit.
type Config struct {
	DataDir            string `json:"data_dir" yaml:"data_dir"`
	SyncQuotaBytes     int    `json:"sync_quota_bytes" yaml:"sync_quota_bytes"`
	SyncItemQuotaBytes int    `json:"sync_item_quota_bytes" yaml:"sync_item_quota_bytes"`
	LocalQuotaBytes    int    `json:"local_quota_bytes" yaml:"local_quota_bytes"`
}

// DefaultConfig returns a Config with the default quotas for dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		SyncQuotaBytes:     DefaultSyncQuotaBytes,
		SyncItemQuotaBytes: DefaultSyncItemQuotaBytes,
		LocalQuotaBytes:    DefaultLocalQuotaBytes,
	}
}

// ErrNegativeQuota is returned by Validate for quotas below zero.
var ErrNegativeQuota = errors.New("quota must not be negative")

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	if c.SyncQuotaBytes < 0 || c.SyncItemQuotaBytes < 0 || c.LocalQuotaBytes < 0 {
		return ErrNegativeQuota
	}
	return nil
}

// Backend owns the SQLite database that holds both storage areas.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   Config
	db       *sql.DB
	path     string

	sync  *Area
	local *Area
}

// NewBackend creates a detached backend. Its areas exist immediately but
// return ErrNotAttached until Attach succeeds.
func NewBackend() *Backend {
	b := &Backend{}
	b.sync = &Area{backend: b, table: tableSync}
	b.local = &Area{backend: b, table: tableLocal}
	return b
}

// Attach opens (creating when needed) the database in config.DataDir and
// ensures the schema. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	// One connection keeps writers in this process from tripping over each
	// other's locks.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("create schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.path = dbPath
	b.sync.quota = quota{total: config.SyncQuotaBytes, perItem: config.SyncItemQuotaBytes}
	b.local.quota = quota{total: config.LocalQuotaBytes}
	b.attached = true
	return nil
}

// Detach closes the database. Detach is idempotent. After Detach, area
// operations return ErrNotAttached.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	b.path = ""
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	return nil
}

// Sync returns the small-quota synced area.
func (b *Backend) Sync() *Area { return b.sync }

// Local returns the large-quota local area.
func (b *Backend) Local() *Area { return b.local }

// Area returns the area named by t.
func (b *Backend) Area(t types.AreaType) (*Area, error) {
	switch t {
	case types.AreaSync:
		return b.sync, nil
	case types.AreaLocal:
		return b.local, nil
	default:
		return nil, fmt.Errorf("unknown storage area %q", t)
	}
}

// Path returns the database file path, empty while detached.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// DataVersion returns SQLite's data_version for this backend's connection.
// The value changes only when another connection commits, so it tells
// writes by other processes apart from our own.
func (b *Backend) DataVersion(ctx context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, err := b.handle()
	if err != nil {
		return 0, err
	}
	var v int64
	if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read data version: %w", err)
	}
	return v, nil
}

// handle returns the open database or ErrNotAttached. The caller must hold
// b.mu for reading.
func (b *Backend) handle() (*sql.DB, error) {
	if !b.attached || b.db == nil {
		return nil, types.ErrNotAttached
	}
	return b.db, nil
}
