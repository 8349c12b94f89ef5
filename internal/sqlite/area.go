package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// quota limits an area's size in bytes. Zero disables a limit.
type quota struct {
	total   int
	perItem int
}

// check validates a batch against the quota. existing is the byte size of
// entries that the batch does not overwrite.
func (q quota) check(existing int, items map[string]json.RawMessage) error {
	size := existing
	for key, value := range items {
		n := len(key) + len(value)
		if q.perItem > 0 && n > q.perItem {
			return fmt.Errorf("%w: %w: item %q is %d bytes, limit %d",
				types.ErrBackendWrite, types.ErrQuotaExceeded, key, n, q.perItem)
		}
		size += n
	}
	if q.total > 0 && size > q.total {
		return fmt.Errorf("%w: %w: area would hold %d bytes, limit %d",
			types.ErrBackendWrite, types.ErrQuotaExceeded, size, q.total)
	}
	return nil
}

// Area is one key to JSON document table. It implements types.StorageArea.
type Area struct {
	backend *Backend
	table   string
	quota   quota
}

var _ types.StorageArea = (*Area)(nil)

// Get returns the stored documents for keys. Missing keys are omitted.
func (a *Area) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	a.backend.mu.RLock()
	defer a.backend.mu.RUnlock()

	db, err := a.backend.handle()
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := fmt.Sprintf("SELECT key, value FROM %s WHERE key IN (%s)", a.table, placeholders(len(keys)))
	rows, err := db.QueryContext(ctx, query, anyArgs(keys)...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", a.table, err)
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

// Set writes all items in one transaction. When the batch would exceed the
// area's quota nothing is written and the error wraps ErrQuotaExceeded.
func (a *Area) Set(ctx context.Context, items map[string]json.RawMessage) error {
	a.backend.mu.RLock()
	defer a.backend.mu.RUnlock()

	db, err := a.backend.handle()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for key, value := range items {
		if !json.Valid(value) {
			return fmt.Errorf("%w: value for %q is not valid JSON", types.ErrBackendWrite, key)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", types.ErrBackendWrite, err)
	}
	defer tx.Rollback()

	existing, err := a.sizeExcluding(ctx, tx, keysOf(items))
	if err != nil {
		return fmt.Errorf("%w: measure %s: %w", types.ErrBackendWrite, a.table, err)
	}
	if err := a.quota.check(existing, items); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, a.table))
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", types.ErrBackendWrite, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for key, value := range items {
		if _, err := stmt.ExecContext(ctx, key, string(value), now); err != nil {
			return fmt.Errorf("%w: write %s/%s: %w", types.ErrBackendWrite, a.table, key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", types.ErrBackendWrite, err)
	}
	return nil
}

// Remove deletes keys. Missing keys are ignored.
func (a *Area) Remove(ctx context.Context, keys ...string) error {
	a.backend.mu.RLock()
	defer a.backend.mu.RUnlock()

	db, err := a.backend.handle()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE key IN (%s)", a.table, placeholders(len(keys)))
	if _, err := db.ExecContext(ctx, query, anyArgs(keys)...); err != nil {
		return fmt.Errorf("%w: delete from %s: %w", types.ErrBackendWrite, a.table, err)
	}
	return nil
}

// Keys lists keys starting with prefix in lexical order.
func (a *Area) Keys(ctx context.Context, prefix string) ([]string, error) {
	a.backend.mu.RLock()
	defer a.backend.mu.RUnlock()

	db, err := a.backend.handle()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT key FROM %s WHERE substr(key, 1, ?) = ? ORDER BY key", a.table)
	rows, err := db.QueryContext(ctx, query, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", a.table, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// BytesInUse returns the number of bytes the area holds (keys plus values).
func (a *Area) BytesInUse(ctx context.Context) (int, error) {
	a.backend.mu.RLock()
	defer a.backend.mu.RUnlock()

	db, err := a.backend.handle()
	if err != nil {
		return 0, err
	}
	var n int
	query := fmt.Sprintf("SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0) FROM %s", a.table)
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (a *Area) sizeExcluding(ctx context.Context, tx *sql.Tx, keys []string) (int, error) {
	if a.quota.total <= 0 {
		return 0, nil
	}
	query := fmt.Sprintf("SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0) FROM %s WHERE key NOT IN (%s)",
		a.table, placeholders(len(keys)))
	var n int
	if err := tx.QueryRowContext(ctx, query, anyArgs(keys)...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anyArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}

func keysOf(items map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}
