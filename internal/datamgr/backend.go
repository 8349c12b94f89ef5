package datamgr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mesh-intelligence/tabshelf/internal/remote"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// backend is the storage behind one configuration.
type backend interface {
	load(ctx context.Context) (*types.ConfigData, error)
	save(ctx context.Context, data *types.ConfigData) error
	remove(ctx context.Context) error
}

// backendFor is the only place that maps a configuration's location to its
// storage. The caller must hold m.mu.
func (m *Manager) backendFor(ctx context.Context, cfg types.UserConfig) (backend, error) {
	switch loc := cfg.Location.(type) {
	case types.LocalLocation:
		area, err := m.area(loc.Area)
		if err != nil {
			return nil, err
		}
		return localBackend{area: area, key: loc.Key}, nil
	case types.RemoteLocation:
		store, err := m.remoteFor(ctx, loc.UserID)
		if err != nil {
			return nil, err
		}
		return remoteBackend{store: store, policy: m.policy(store)}, nil
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnknownKind, cfg.Location)
	}
}

func (m *Manager) area(t types.AreaType) (types.StorageArea, error) {
	switch t {
	case types.AreaSync, "":
		return m.sync, nil
	case types.AreaLocal:
		return m.local, nil
	default:
		return nil, fmt.Errorf("unknown storage area %q", t)
	}
}

// remoteFor returns the remote client pointed at userID, opening it from
// the stored remote settings when needed. The caller must hold m.mu.
func (m *Manager) remoteFor(ctx context.Context, userID string) (types.RemoteStore, error) {
	if m.remote == nil {
		if m.settings.URL == "" {
			return nil, types.ErrRemoteNotConfigured
		}
		store, err := m.openRemote(m.settings.RemoteCredentials)
		if err != nil {
			return nil, err
		}
		m.remote = store
	}
	creds := m.remote.Credentials()
	if creds.URL == "" || creds.UserID != userID {
		if creds.URL == "" {
			creds = m.settings.RemoteCredentials
		}
		creds.UserID = userID
		if err := m.remote.Initialize(ctx, creds, false); err != nil {
			return nil, err
		}
	}
	return m.remote, nil
}

func (m *Manager) policy(store types.RemoteStore) remote.RetryPolicy {
	return remote.PolicyFor(store, m.retryAttempts, m.logger)
}

type localBackend struct {
	area types.StorageArea
	key  string
}

func (b localBackend) load(ctx context.Context) (*types.ConfigData, error) {
	got, err := b.area.Get(ctx, b.key)
	if err != nil {
		return nil, err
	}
	raw, ok := got[b.key]
	if !ok {
		return nil, nil
	}
	return types.DecodeConfigData(raw)
}

func (b localBackend) save(ctx context.Context, data *types.ConfigData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return b.area.Set(ctx, map[string]json.RawMessage{b.key: raw})
}

func (b localBackend) remove(ctx context.Context) error {
	return b.area.Remove(ctx, b.key)
}

type remoteBackend struct {
	store  types.RemoteStore
	policy remote.RetryPolicy
}

func (b remoteBackend) load(ctx context.Context) (*types.ConfigData, error) {
	var rec *types.RemoteRecord
	err := b.policy.Do(ctx, remote.OpLoad, func(ctx context.Context) error {
		var err error
		rec, err = b.store.LoadData(ctx)
		return err
	})
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Data, nil
}

func (b remoteBackend) save(ctx context.Context, data *types.ConfigData) error {
	return b.policy.Do(ctx, remote.OpSave, func(ctx context.Context) error {
		return b.store.SaveData(ctx, data)
	})
}

func (b remoteBackend) remove(ctx context.Context) error {
	return b.policy.Do(ctx, remote.OpDelete, func(ctx context.Context) error {
		return b.store.DeleteData(ctx)
	})
}

func (b remoteBackend) upload(ctx context.Context, r io.Reader, bucket, path string) (types.UploadResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return types.UploadResult{}, err
	}
	var res types.UploadResult
	err = b.policy.Do(ctx, remote.OpUpload, func(ctx context.Context) error {
		var err error
		res, err = b.store.UploadFile(ctx, bytes.NewReader(content), bucket, path)
		return err
	})
	return res, err
}
