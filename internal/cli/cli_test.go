package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tabshelf/internal/paths"
	"github.com/mesh-intelligence/tabshelf/internal/remote"
	"github.com/mesh-intelligence/tabshelf/internal/sqlite"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

type cliEnv struct {
	configDir string
	dataDir   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	for _, k := range []string{"TABSHELF_LOG_FILE", "TABSHELF_LOG_LEVEL", "TABSHELF_DATA_DIR", "TABSHELF_CONFIG_DIR"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	return &cliEnv{
		configDir: filepath.Join(dir, "config"),
		dataDir:   filepath.Join(dir, "data"),
	}
}

// run executes tabshelf in-process against the env's directories.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	full := append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir, "--log-level", "error"}, args...)
	var out, errOut bytes.Buffer
	code = Run(context.Background(), full, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), code
}

// mustRun fails the test unless the command exits zero.
func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, code := e.run(t, "", args...)
	require.Equal(t, exitSuccess, code, "tabshelf %v\nstderr: %s", args, stderr)
	return stdout
}

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(raw), &v), raw)
	return v
}

func TestVersion(t *testing.T) {
	e := newCLIEnv(t)
	out := decode[map[string]string](t, e.mustRun(t, "version", "--json"))
	assert.Equal(t, Version, out["version"])
	assert.Equal(t, modulePath, out["module"])
}

func TestInitCreatesConfigAndDatabase(t *testing.T) {
	e := newCLIEnv(t)
	out := e.mustRun(t, "init")
	assert.Contains(t, out, "tabshelf initialized")

	assert.FileExists(t, paths.ConfigFile(e.configDir))
	assert.FileExists(t, filepath.Join(e.dataDir, sqlite.DBFileName))

	body, err := os.ReadFile(paths.ConfigFile(e.configDir))
	require.NoError(t, err)
	assert.Contains(t, string(body), "retry_attempts: 1")
	assert.Contains(t, string(body), "ttl: 24h0m0s")
}

func TestConfigListAndCurrent(t *testing.T) {
	e := newCLIEnv(t)
	cfgs := decode[[]map[string]any](t, e.mustRun(t, "config", "list", "--json"))
	require.Len(t, cfgs, 1)
	assert.Equal(t, types.DefaultConfigID, cfgs[0]["configId"])
	assert.Equal(t, true, cfgs[0]["isActive"])

	out := e.mustRun(t, "config", "current")
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, types.DefaultConfigID)
}

func TestCategoryAddAndList(t *testing.T) {
	e := newCLIEnv(t)
	added := decode[types.Category](t, e.mustRun(t, "category", "add", "Reading", "--json"))
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "Reading", added.Name)

	cats := decode[[]types.Category](t, e.mustRun(t, "category", "list", "--json"))
	require.Len(t, cats, 4)
	assert.Equal(t, added.ID, cats[3].ID)

	e.mustRun(t, "category", "rename", added.ID, "Later")
	out := e.mustRun(t, "category", "list")
	assert.Contains(t, out, "Later")
}

func TestDataSaveAndShow(t *testing.T) {
	e := newCLIEnv(t)
	res := decode[map[string]any](t, e.mustRun(t, "data", "save", `{"settings":{"viewMode":"list"}}`, "--json"))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "unified", res["method"])

	data := decode[types.ConfigData](t, e.mustRun(t, "data", "show", "--json"))
	require.NotNil(t, data.Settings)
	assert.Equal(t, types.ViewList, data.Settings.ViewMode)
	assert.Len(t, data.Categories, 3, "smart merge keeps categories")
}

func TestDataSaveFromStdin(t *testing.T) {
	e := newCLIEnv(t)
	_, stderr, code := e.run(t, `{"themeSettings":{"theme":"dark"}}`, "data", "save", "-", "--source", "theme-manager")
	require.Equal(t, exitSuccess, code, stderr)

	theme := decode[types.ThemeSettings](t, e.mustRun(t, "theme", "show", "--json"))
	assert.Equal(t, "dark", theme.Theme)
}

func TestUserErrorsExitOne(t *testing.T) {
	e := newCLIEnv(t)
	tests := []struct {
		name string
		args []string
	}{
		{"invalid JSON", []string{"data", "save", "{not json"}},
		{"schema violation", []string{"data", "save", `{"categories":"nope"}`}},
		{"bad priority", []string{"data", "save", "{}", "--priority", "urgent"}},
		{"unknown config", []string{"config", "switch", "nobody"}},
		{"delete default", []string{"config", "delete", types.DefaultConfigID}},
		{"bad view mode", []string{"view", "diagonal"}},
		{"opacity out of range", []string{"theme", "opacity", "150"}},
		{"unknown category", []string{"category", "rename", "missing", "x"}},
		{"missing flags", []string{"cloud", "enable"}},
		{"upload on local config", []string{"theme", "upload", os.Args[0]}},
		{"unknown command", []string{"frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := e.run(t, "", tt.args...)
			assert.Equal(t, exitUserError, code, stderr)
			assert.Contains(t, stderr, "tabshelf:")
		})
	}
}

func TestCloudLifecycle(t *testing.T) {
	e := newCLIEnv(t)
	server := remote.MemoryServerFor("cli-cloud-lifecycle")
	server.Reset()
	t.Cleanup(server.Reset)

	cfg := decode[map[string]any](t, e.mustRun(t, "cloud", "enable",
		"--url", server.URL(), "--user", "alice", "--key", "secret-key-1234",
		"--name", "Work", "--switch", "--json"))
	assert.Equal(t, "alice", cfg["configId"])
	assert.Equal(t, true, cfg["isActive"])
	require.NotNil(t, server.Record("alice"), "empty remote is seeded")

	status := decode[cloudStatus](t, e.mustRun(t, "cloud", "status", "--json"))
	assert.True(t, status.Enabled)
	assert.Equal(t, "alice", status.Active)
	assert.Equal(t, "***********1234", status.Key)

	cfgs := decode[[]map[string]any](t, e.mustRun(t, "config", "list", "--json"))
	require.Len(t, cfgs, 2)
	assert.Equal(t, types.DefaultConfigID, cfgs[0]["configId"])

	e.mustRun(t, "theme", "set", "dark")
	stored := server.Record("alice")
	require.NotNil(t, stored.ThemeSettings)
	assert.Equal(t, "dark", stored.ThemeSettings.Theme)

	img := filepath.Join(t.TempDir(), "sky.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o644))
	out := e.mustRun(t, "theme", "upload", img)
	assert.Contains(t, out, "Uploaded")
	assert.Equal(t, 1, server.Calls(remote.OpUpload))

	out = e.mustRun(t, "cloud", "disable")
	assert.Contains(t, out, "Cloud sync disabled")
	current := decode[map[string]any](t, e.mustRun(t, "config", "current", "--json"))
	assert.Equal(t, types.DefaultConfigID, current["configId"])
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", maskKey(""))
	assert.Equal(t, "***", maskKey("abc"))
	assert.Equal(t, "****cdef", maskKey("abcdcdef"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitUserError, exitCode(fail(types.ErrValidation)))
	assert.Equal(t, exitSysError, exitCode(fail(assert.AnError)))
	assert.Equal(t, exitUserError, exitCode(assert.AnError), "untagged errors come from parsing")
	assert.NoError(t, fail(nil))
}
