package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// RESTClient talks to a Supabase-compatible endpoint: PostgREST under
// /rest/v1 for the user table and the storage API under /storage/v1.
type RESTClient struct {
	opts Options

	mu    sync.RWMutex
	creds types.RemoteCredentials
}

var _ types.RemoteStore = (*RESTClient)(nil)

// NewRESTClient returns an uninitialized client.
func NewRESTClient(opts Options) *RESTClient {
	return &RESTClient{opts: opts.withDefaults()}
}

type restRow struct {
	UserID    string            `json:"user_id,omitempty"`
	Data      *types.ConfigData `json:"data"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Initialize points the client at creds and optionally probes the table.
func (c *RESTClient) Initialize(ctx context.Context, creds types.RemoteCredentials, testConnection bool) error {
	if err := ValidateCredentials(creds); err != nil {
		return err
	}
	creds.URL = strings.TrimRight(strings.TrimSpace(creds.URL), "/")
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()

	if !testConnection {
		return nil
	}
	q := url.Values{}
	q.Set("select", "user_id")
	q.Set("limit", "1")
	var rows []restRow
	return c.doJSON(ctx, "probe", http.MethodGet, c.tablePath(q), nil, nil, &rows)
}

// Credentials returns the credentials the client targets.
func (c *RESTClient) Credentials() types.RemoteCredentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// LoadData fetches the current user's row.
func (c *RESTClient) LoadData(ctx context.Context) (*types.RemoteRecord, error) {
	creds := c.Credentials()
	q := url.Values{}
	q.Set("user_id", "eq."+creds.UserID)
	q.Set("select", "data,updated_at")
	var rows []restRow
	if err := c.doJSON(ctx, "load", http.MethodGet, c.tablePath(q), nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].Data == nil {
		return nil, nil
	}
	return &types.RemoteRecord{Data: rows[0].Data, UpdatedAt: rows[0].UpdatedAt}, nil
}

// SaveData upserts the current user's row.
func (c *RESTClient) SaveData(ctx context.Context, data *types.ConfigData) error {
	creds := c.Credentials()
	q := url.Values{}
	q.Set("on_conflict", "user_id")
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	row := restRow{UserID: creds.UserID, Data: data, UpdatedAt: time.Now().UTC()}
	return c.doJSON(ctx, "save", http.MethodPost, c.tablePath(q), headers, row, nil)
}

// DeleteData removes the current user's row.
func (c *RESTClient) DeleteData(ctx context.Context) error {
	creds := c.Credentials()
	q := url.Values{}
	q.Set("user_id", "eq."+creds.UserID)
	return c.doJSON(ctx, "delete", http.MethodDelete, c.tablePath(q), nil, nil, nil)
}

// UploadFile stores r under bucket/path and returns its public URL.
func (c *RESTClient) UploadFile(ctx context.Context, r io.Reader, bucket, path string) (types.UploadResult, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return types.UploadResult{}, err
	}
	objectPath := url.PathEscape(bucket) + "/" + escapeObjectPath(path)
	req, err := c.newRequest(ctx, http.MethodPost, "/storage/v1/object/"+objectPath, bytes.NewReader(body))
	if err != nil {
		return types.UploadResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("x-upsert", "true")
	if err := c.do(req, "upload", nil); err != nil {
		return types.UploadResult{}, err
	}
	return types.UploadResult{
		URL:  c.Credentials().URL + "/storage/v1/object/public/" + objectPath,
		Path: path,
	}, nil
}

// IsConnectionError implements types.RemoteStore.
func (c *RESTClient) IsConnectionError(err error) bool { return IsConnectionError(err) }

// Close releases idle connections.
func (c *RESTClient) Close() error {
	c.opts.HTTPClient.CloseIdleConnections()
	return nil
}

func (c *RESTClient) tablePath(q url.Values) string {
	return "/rest/v1/" + url.PathEscape(c.opts.Table) + "?" + q.Encode()
}

func (c *RESTClient) newRequest(ctx context.Context, method, requestPath string, body io.Reader) (*http.Request, error) {
	creds := c.Credentials()
	if creds.URL == "" {
		return nil, types.ErrRemoteNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, method, creds.URL+requestPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", creds.AnonKey)
	req.Header.Set("Authorization", "Bearer "+creds.AnonKey)
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

func (c *RESTClient) doJSON(ctx context.Context, op, method, requestPath string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, requestPath, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.do(req, op, out)
}

func (c *RESTClient) do(req *http.Request, op string, out any) error {
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &ConnectionError{Op: op, Err: err}
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &ConnectionError{Op: op, Err: readErr}
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(bytes.TrimSpace(payload)) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("remote %s: decode response: %w", op, err)
		}
		return nil
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Code: errPayload.Code, Message: errPayload.Message}
	if connectionStatus(resp.StatusCode) {
		return &ConnectionError{Op: op, StatusCode: resp.StatusCode, Err: httpErr}
	}
	return httpErr
}

func escapeObjectPath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
