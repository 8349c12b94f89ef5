package remote

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

func postgresDSN(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TABSHELF_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("TABSHELF_TEST_POSTGRES_DSN not set")
	}
	return dsn
}

func TestPostgresClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := postgresDSN(t)

	c := NewPostgresClient(Options{Table: "tabshelf_test_user_data"})
	defer c.Close()
	user := uuid.NewString()
	require.NoError(t, c.Initialize(ctx, types.RemoteCredentials{URL: dsn, UserID: user}, true))

	rec, err := c.LoadData(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, c.SaveData(ctx, &types.ConfigData{Categories: []types.Category{{ID: "c", Name: "PG"}}}))
	require.NoError(t, c.SaveData(ctx, &types.ConfigData{Categories: []types.Category{{ID: "c", Name: "PG2"}}}))
	rec, err = c.LoadData(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "PG2", rec.Data.Categories[0].Name)

	res, err := c.UploadFile(ctx, strings.NewReader("bytes"), "bg", user+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, "pg://bg/"+user+"/a.png", res.URL)

	require.NoError(t, c.DeleteData(ctx))
	rec, err = c.LoadData(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPostgresClient_UnreachableIsConnectionError(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	c := NewPostgresClient(Options{})
	defer c.Close()
	err := c.Initialize(context.Background(), types.RemoteCredentials{
		URL:    "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1",
		UserID: "u",
	}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConnection)
}
