package types

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"
)

// StorageArea is a batched key to JSON document store, the shape of the
// browser's storage areas. Missing keys are omitted from Get results.
type StorageArea interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, items map[string]json.RawMessage) error
	Remove(ctx context.Context, keys ...string) error
	// Keys lists stored keys that start with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// RemoteCredentials address one user's record in a remote store.
type RemoteCredentials struct {
	URL     string `json:"url"`
	AnonKey string `json:"anonKey"`
	UserID  string `json:"userId"`
}

// RemoteSettings is the persisted cloud-sync record kept in the sync area.
type RemoteSettings struct {
	RemoteCredentials
	Enabled bool `json:"enabled"`
}

// RemoteRecord is what a remote store holds for one user.
type RemoteRecord struct {
	Data      *ConfigData
	UpdatedAt time.Time
}

// UploadResult describes a stored file.
type UploadResult struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// RemoteStore is a remote key-value-with-metadata store holding one record
// per user id. SaveData is an upsert keyed by the current user id.
type RemoteStore interface {
	// Initialize points the client at creds. When testConnection is set the
	// store is probed and a connection error is returned if unreachable.
	Initialize(ctx context.Context, creds RemoteCredentials, testConnection bool) error
	// Credentials returns the credentials the client currently targets.
	Credentials() RemoteCredentials
	// LoadData returns the user's record, or nil when none exists.
	LoadData(ctx context.Context) (*RemoteRecord, error)
	SaveData(ctx context.Context, data *ConfigData) error
	DeleteData(ctx context.Context) error
	UploadFile(ctx context.Context, r io.Reader, bucket, path string) (UploadResult, error)
	// IsConnectionError classifies err as transient and reconnect-worthy.
	IsConnectionError(err error) bool
	Close() error
}

// Storage errors.
var (
	ErrNotAttached     = errors.New("storage is not attached")
	ErrAlreadyAttached = errors.New("storage is already attached")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
)
