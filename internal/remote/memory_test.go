package remote

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

func newMemoryClient(t *testing.T, user string) (*MemoryClient, *MemoryServer) {
	t.Helper()
	server := MemoryServerFor(t.Name())
	server.Reset()
	t.Cleanup(server.Reset)
	c := NewMemoryClient()
	require.NoError(t, c.Initialize(context.Background(), types.RemoteCredentials{
		URL: server.URL(), UserID: user,
	}, false))
	return c, server
}

func TestMemoryClient_RecordsArePerUser(t *testing.T) {
	ctx := context.Background()
	c, server := newMemoryClient(t, "alice")

	require.NoError(t, c.SaveData(ctx, &types.ConfigData{Categories: []types.Category{{ID: "a"}}}))
	assert.NotNil(t, server.Record("alice"))
	assert.Nil(t, server.Record("bob"))

	other := NewMemoryClient()
	require.NoError(t, other.Initialize(ctx, types.RemoteCredentials{URL: server.URL(), UserID: "bob"}, false))
	rec, err := other.LoadData(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = c.LoadData(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "a", rec.Data.Categories[0].ID)

	require.NoError(t, c.DeleteData(ctx))
	assert.Nil(t, server.Record("alice"))
}

func TestMemoryClient_StoresCopies(t *testing.T) {
	ctx := context.Background()
	c, server := newMemoryClient(t, "alice")

	data := &types.ConfigData{Categories: []types.Category{{ID: "a", Name: "before"}}}
	require.NoError(t, c.SaveData(ctx, data))
	data.Categories[0].Name = "after"
	assert.Equal(t, "before", server.Record("alice").Categories[0].Name)
}

func TestMemoryClient_FailureInjection(t *testing.T) {
	ctx := context.Background()
	c, server := newMemoryClient(t, "alice")

	boom := errors.New("boom")
	server.FailNext(OpLoad, boom)
	_, err := c.LoadData(ctx)
	assert.ErrorIs(t, err, boom)
	_, err = c.LoadData(ctx)
	assert.NoError(t, err, "injected failures are consumed once")
	assert.Equal(t, 2, server.Calls(OpLoad))

	server.SetOffline(true)
	err = c.SaveData(ctx, &types.ConfigData{})
	assert.ErrorIs(t, err, types.ErrConnection)
	assert.True(t, c.IsConnectionError(err))
	err = c.Initialize(ctx, c.Credentials(), true)
	assert.ErrorIs(t, err, types.ErrConnection)
}

func TestMemoryClient_Upload(t *testing.T) {
	c, server := newMemoryClient(t, "alice")
	res, err := c.UploadFile(context.Background(), strings.NewReader("img"), "bg", "alice/x.png")
	require.NoError(t, err)
	assert.Equal(t, "alice/x.png", res.Path)
	got, ok := server.File("bg", "alice/x.png")
	require.True(t, ok)
	assert.Equal(t, []byte("img"), got)
}

func TestMemoryClient_Uninitialized(t *testing.T) {
	_, err := NewMemoryClient().LoadData(context.Background())
	assert.ErrorIs(t, err, types.ErrRemoteNotConfigured)
}

func TestMemoryServer_ResetClearsState(t *testing.T) {
	ctx := context.Background()
	c, server := newMemoryClient(t, "alice")

	require.NoError(t, c.SaveData(ctx, &types.ConfigData{Categories: []types.Category{{ID: "a"}}}))
	_, err := c.UploadFile(ctx, strings.NewReader("png"), "backgrounds", "a/bg.png")
	require.NoError(t, err)
	server.FailNext(OpLoad, errors.New("queued"))
	server.SetOffline(true)

	server.Reset()

	again := MemoryServerFor(t.Name())
	require.Same(t, server, again)
	assert.Nil(t, again.Record("alice"))
	_, ok := again.File("backgrounds", "a/bg.png")
	assert.False(t, ok)
	assert.Zero(t, again.Calls(OpSave))

	rec, err := c.LoadData(ctx)
	require.NoError(t, err, "reset brings the server online and drops queued failures")
	assert.Nil(t, rec)
	require.NoError(t, c.Initialize(ctx, c.Credentials(), true))
}
