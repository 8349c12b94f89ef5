package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// fakePostgREST serves a single user table and a storage bucket.
type fakePostgREST struct {
	mu      sync.Mutex
	rows    map[string]json.RawMessage
	objects map[string][]byte
	status  int
	headers []http.Header
}

func newFakePostgREST(t *testing.T) (*fakePostgREST, *httptest.Server) {
	t.Helper()
	f := &fakePostgREST{rows: map[string]json.RawMessage{}, objects: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakePostgREST) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = append(f.headers, r.Header.Clone())

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"code":"PGRST000","message":"injected"}`))
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/"):
		body, _ := io.ReadAll(r.Body)
		f.objects[strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")] = body
		_, _ = w.Write([]byte(`{"Key":"ok"}`))
	case r.URL.Path == "/rest/v1/user_data":
		user := strings.TrimPrefix(r.URL.Query().Get("user_id"), "eq.")
		switch r.Method {
		case http.MethodGet:
			if user == "" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			row, ok := f.rows[user]
			if !ok {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[` + string(row) + `]`))
		case http.MethodPost:
			var in map[string]json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&in)
			var id string
			_ = json.Unmarshal(in["user_id"], &id)
			row, _ := json.Marshal(map[string]json.RawMessage{"data": in["data"], "updated_at": in["updated_at"]})
			f.rows[id] = row
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			delete(f.rows, user)
			w.WriteHeader(http.StatusNoContent)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newInitializedREST(t *testing.T, url string) *RESTClient {
	t.Helper()
	c := NewRESTClient(Options{})
	require.NoError(t, c.Initialize(context.Background(), types.RemoteCredentials{
		URL: url, AnonKey: "anon", UserID: "u1",
	}, false))
	return c
}

func TestRESTClient_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakePostgREST(t)
	c := newInitializedREST(t, srv.URL+"/")

	rec, err := c.LoadData(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "empty table yields no record")

	data := &types.ConfigData{
		Categories: []types.Category{{ID: "c1", Name: "Work"}},
		Settings:   &types.Settings{ViewMode: types.ViewList},
	}
	require.NoError(t, c.SaveData(ctx, data))

	rec, err = c.LoadData(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Work", rec.Data.Categories[0].Name)
	assert.Equal(t, types.ViewList, rec.Data.Settings.ViewMode)
	assert.False(t, rec.UpdatedAt.IsZero())

	require.NoError(t, c.DeleteData(ctx))
	rec, err = c.LoadData(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.headers {
		assert.Equal(t, "anon", h.Get("apikey"))
		assert.Equal(t, "Bearer anon", h.Get("Authorization"))
	}
}

func TestRESTClient_InitializeProbe(t *testing.T) {
	f, srv := newFakePostgREST(t)
	c := NewRESTClient(Options{})
	creds := types.RemoteCredentials{URL: srv.URL, AnonKey: "anon", UserID: "u1"}

	require.NoError(t, c.Initialize(context.Background(), creds, true))
	assert.Equal(t, srv.URL, c.Credentials().URL)

	f.mu.Lock()
	f.status = http.StatusServiceUnavailable
	f.mu.Unlock()
	err := c.Initialize(context.Background(), creds, true)
	assert.ErrorIs(t, err, types.ErrConnection)
}

func TestRESTClient_InitializeRejectsIncompleteCredentials(t *testing.T) {
	c := NewRESTClient(Options{})
	err := c.Initialize(context.Background(), types.RemoteCredentials{URL: "https://x"}, false)
	assert.ErrorIs(t, err, types.ErrRemoteNotConfigured)
}

func TestRESTClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantConn bool
	}{
		{"unauthorized is a connection error", http.StatusUnauthorized, true},
		{"forbidden is a connection error", http.StatusForbidden, true},
		{"timeout is a connection error", http.StatusRequestTimeout, true},
		{"throttled is a connection error", http.StatusTooManyRequests, true},
		{"server error is a connection error", http.StatusBadGateway, true},
		{"bad request is not", http.StatusBadRequest, false},
		{"conflict is not", http.StatusConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakePostgREST(t)
			c := newInitializedREST(t, srv.URL)
			f.status = tt.status

			err := c.SaveData(context.Background(), &types.ConfigData{})
			require.Error(t, err)
			assert.Equal(t, tt.wantConn, errors.Is(err, types.ErrConnection))
			assert.Equal(t, tt.wantConn, c.IsConnectionError(err))

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, "PGRST000", httpErr.Code)
		})
	}
}

func TestRESTClient_TransportFailureIsConnectionError(t *testing.T) {
	_, srv := newFakePostgREST(t)
	c := newInitializedREST(t, srv.URL)
	srv.Close()

	_, err := c.LoadData(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConnection)
}

func TestRESTClient_UploadFile(t *testing.T) {
	f, srv := newFakePostgREST(t)
	c := newInitializedREST(t, srv.URL)

	res, err := c.UploadFile(context.Background(), strings.NewReader("png-bytes"), "backgrounds", "u1/bg one.png")
	require.NoError(t, err)
	assert.Equal(t, "u1/bg one.png", res.Path)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/backgrounds/u1/bg%20one.png", res.URL)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []byte("png-bytes"), f.objects["backgrounds/u1/bg one.png"])
}
