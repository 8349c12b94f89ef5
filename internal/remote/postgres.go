package remote

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

const postgresFilesTable = "tabshelf_files"

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresClient stores user records directly in a Postgres database. The
// credentials URL is the connection string; the anon key is unused.
type PostgresClient struct {
	opts   Options
	openDB sqlOpenFunc

	mu    sync.RWMutex
	creds types.RemoteCredentials
	conn  *pgConn
}

// pgConn is one lazily opened database handle.
type pgConn struct {
	dsn      string
	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

var _ types.RemoteStore = (*PostgresClient)(nil)

// NewPostgresClient returns an uninitialized client.
func NewPostgresClient(opts Options) *PostgresClient {
	return &PostgresClient{opts: opts.withDefaults(), openDB: sql.Open}
}

// Initialize points the client at creds and replaces the pooled handle, so
// it doubles as a reconnect. When testConnection is set the schema is ensured and the server
// pinged.
func (c *PostgresClient) Initialize(ctx context.Context, creds types.RemoteCredentials, testConnection bool) error {
	if err := ValidateCredentials(creds); err != nil {
		return err
	}
	c.mu.Lock()
	stale := c.conn
	c.conn = &pgConn{dsn: creds.URL}
	c.creds = creds
	c.mu.Unlock()

	if stale != nil && stale.db != nil {
		_ = stale.db.Close()
	}
	if !testConnection {
		return nil
	}
	db, err := c.ensureReady(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	return classify("probe", db.PingContext(ctx))
}

// Credentials returns the credentials the client targets.
func (c *PostgresClient) Credentials() types.RemoteCredentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// LoadData reads the current user's row.
func (c *PostgresClient) LoadData(ctx context.Context) (*types.RemoteRecord, error) {
	db, err := c.ensureReady(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	query := fmt.Sprintf("SELECT data, updated_at FROM %s WHERE user_id = $1", quoteIdentifier(c.opts.Table))
	var payload string
	var updated time.Time
	err = db.QueryRowContext(ctx, query, c.Credentials().UserID).Scan(&payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("load", err)
	}
	var data types.ConfigData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("remote load: decode record: %w", err)
	}
	return &types.RemoteRecord{Data: &data, UpdatedAt: updated.UTC()}, nil
}

// SaveData upserts the current user's row.
func (c *PostgresClient) SaveData(ctx context.Context, data *types.ConfigData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	db, err := c.ensureReady(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, quoteIdentifier(c.opts.Table))
	_, err = db.ExecContext(ctx, query, c.Credentials().UserID, string(payload))
	return classify("save", err)
}

// DeleteData removes the current user's row.
func (c *PostgresClient) DeleteData(ctx context.Context) error {
	db, err := c.ensureReady(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", quoteIdentifier(c.opts.Table))
	_, err = db.ExecContext(ctx, query, c.Credentials().UserID)
	return classify("delete", err)
}

// UploadFile stores the content in the files table. The returned URL uses
// the pg scheme since the database serves no HTTP.
func (c *PostgresClient) UploadFile(ctx context.Context, r io.Reader, bucket, path string) (types.UploadResult, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return types.UploadResult{}, err
	}
	db, err := c.ensureReady(ctx)
	if err != nil {
		return types.UploadResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (bucket, path, content, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (bucket, path)
		DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()`, quoteIdentifier(postgresFilesTable))
	if _, err := db.ExecContext(ctx, query, bucket, path, buf.Bytes()); err != nil {
		return types.UploadResult{}, classify("upload", err)
	}
	return types.UploadResult{URL: "pg://" + bucket + "/" + strings.TrimLeft(path, "/"), Path: path}, nil
}

// IsConnectionError implements types.RemoteStore.
func (c *PostgresClient) IsConnectionError(err error) bool { return IsConnectionError(err) }

// Close closes the pooled handle.
func (c *PostgresClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil || conn.db == nil {
		return nil
	}
	return conn.db.Close()
}

func (c *PostgresClient) ensureReady(ctx context.Context) (*sql.DB, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, types.ErrRemoteNotConfigured
	}

	conn.initOnce.Do(func() {
		db, err := c.openDB("postgres", conn.dsn)
		if err != nil {
			conn.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		statements := []string{
			fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				user_id TEXT PRIMARY KEY,
				data TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(c.opts.Table)),
			fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				bucket TEXT NOT NULL,
				path TEXT NOT NULL,
				content BYTEA NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (bucket, path)
			)`, quoteIdentifier(postgresFilesTable)),
		}
		for _, stmt := range statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				conn.initErr = classify("init", err)
				return
			}
		}
		conn.db = db
	})
	if conn.initErr != nil {
		return nil, conn.initErr
	}
	return conn.db, nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
