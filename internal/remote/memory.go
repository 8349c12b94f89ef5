package remote

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// Remote operation names used for failure injection and call counting.
const (
	OpProbe  = "probe"
	OpLoad   = "load"
	OpSave   = "save"
	OpDelete = "delete"
	OpUpload = "upload"
)

// ErrOffline is the cause carried by connection errors from an offline
// MemoryServer.
var ErrOffline = errors.New("memory server offline")

// MemoryServer is an in-process remote store addressed as memory://<name>.
// It keeps one record per user id and supports failure injection.
type MemoryServer struct {
	name string

	mu       sync.Mutex
	records  map[string]types.RemoteRecord
	files    map[string][]byte
	offline  bool
	failures map[string][]error
	calls    map[string]int
	now      func() time.Time
}

var memoryServers = struct {
	mu sync.Mutex
	m  map[string]*MemoryServer
}{m: map[string]*MemoryServer{}}

// MemoryServerFor returns the server registered under name, creating it
// when missing.
func MemoryServerFor(name string) *MemoryServer {
	memoryServers.mu.Lock()
	defer memoryServers.mu.Unlock()
	if s, ok := memoryServers.m[name]; ok {
		return s
	}
	s := &MemoryServer{
		name:     name,
		records:  map[string]types.RemoteRecord{},
		files:    map[string][]byte{},
		failures: map[string][]error{},
		calls:    map[string]int{},
		now:      time.Now,
	}
	memoryServers.m[name] = s
	return s
}

// Reset drops every record, file, queued failure and call count and brings
// s back online.
func (s *MemoryServer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[string]types.RemoteRecord{}
	s.files = map[string][]byte{}
	s.failures = map[string][]error{}
	s.calls = map[string]int{}
	s.offline = false
}

// URL returns the credentials URL addressing s.
func (s *MemoryServer) URL() string { return "memory://" + s.name }

// SetOffline makes every operation fail with a connection error.
func (s *MemoryServer) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// FailNext queues err to be returned by the next call of op.
func (s *MemoryServer) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns how many times op was attempted.
func (s *MemoryServer) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Put stores data for userID directly.
func (s *MemoryServer) Put(userID string, data *types.ConfigData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = types.RemoteRecord{Data: data.Clone(), UpdatedAt: s.now().UTC()}
}

// Record returns a copy of the stored data for userID, or nil.
func (s *MemoryServer) Record(userID string) *types.ConfigData {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil
	}
	return rec.Data.Clone()
}

// File returns uploaded content.
func (s *MemoryServer) File(bucket, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[bucket+"/"+path]
	return b, ok
}

// enter records a call of op and returns the injected failure, if any.
// The caller must hold s.mu.
func (s *MemoryServer) enter(op string) error {
	s.calls[op]++
	if s.offline {
		return &ConnectionError{Op: op, Err: ErrOffline}
	}
	if queued := s.failures[op]; len(queued) > 0 {
		s.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

// MemoryClient is a RemoteStore backed by a MemoryServer.
type MemoryClient struct {
	mu     sync.RWMutex
	creds  types.RemoteCredentials
	server *MemoryServer
}

var _ types.RemoteStore = (*MemoryClient)(nil)

// NewMemoryClient returns an uninitialized client.
func NewMemoryClient() *MemoryClient { return &MemoryClient{} }

// Initialize implements types.RemoteStore.
func (c *MemoryClient) Initialize(ctx context.Context, creds types.RemoteCredentials, testConnection bool) error {
	if err := ValidateCredentials(creds); err != nil {
		return err
	}
	u, err := url.Parse(creds.URL)
	if err != nil {
		return err
	}
	name := u.Host + strings.TrimRight(u.Path, "/")
	server := MemoryServerFor(name)

	c.mu.Lock()
	c.creds = creds
	c.server = server
	c.mu.Unlock()

	if !testConnection {
		return nil
	}
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.enter(OpProbe)
}

// Credentials implements types.RemoteStore.
func (c *MemoryClient) Credentials() types.RemoteCredentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

func (c *MemoryClient) target() (*MemoryServer, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.server == nil {
		return nil, "", types.ErrRemoteNotConfigured
	}
	return c.server, c.creds.UserID, nil
}

// LoadData implements types.RemoteStore.
func (c *MemoryClient) LoadData(ctx context.Context) (*types.RemoteRecord, error) {
	s, user, err := c.target()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpLoad); err != nil {
		return nil, err
	}
	rec, ok := s.records[user]
	if !ok {
		return nil, nil
	}
	return &types.RemoteRecord{Data: rec.Data.Clone(), UpdatedAt: rec.UpdatedAt}, nil
}

// SaveData implements types.RemoteStore.
func (c *MemoryClient) SaveData(ctx context.Context, data *types.ConfigData) error {
	s, user, err := c.target()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSave); err != nil {
		return err
	}
	s.records[user] = types.RemoteRecord{Data: data.Clone(), UpdatedAt: s.now().UTC()}
	return nil
}

// DeleteData implements types.RemoteStore.
func (c *MemoryClient) DeleteData(ctx context.Context) error {
	s, user, err := c.target()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDelete); err != nil {
		return err
	}
	delete(s.records, user)
	return nil
}

// UploadFile implements types.RemoteStore.
func (c *MemoryClient) UploadFile(ctx context.Context, r io.Reader, bucket, path string) (types.UploadResult, error) {
	s, _, err := c.target()
	if err != nil {
		return types.UploadResult{}, err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return types.UploadResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpload); err != nil {
		return types.UploadResult{}, err
	}
	s.files[bucket+"/"+path] = content
	return types.UploadResult{URL: s.URL() + "/" + bucket + "/" + path, Path: path}, nil
}

// IsConnectionError implements types.RemoteStore.
func (c *MemoryClient) IsConnectionError(err error) bool { return IsConnectionError(err) }

// Close implements types.RemoteStore.
func (c *MemoryClient) Close() error { return nil }
