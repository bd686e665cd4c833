package cli

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/minemods/internal/testutil"
)

func TestParse_HelpAndUsage(t *testing.T) {
	out := &bytes.Buffer{}
	cmd, exit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cmd)
	assert.Contains(t, out.String(), "Usage:")

	out.Reset()
	_, exit, err = Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Contains(t, out.String(), "Commands:")
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"--nope", "list"}, "flag provided but not defined"},
		{"unknown command", []string{"explode"}, `unknown command "explode"`},
		{"extra args", []string{"list", "more"}, "unexpected arguments"},
		{"bad log format", []string{"-log-format", "yaml", "list"}, "invalid log format"},
		{"bad backend", []string{"-settings-backend", "redis", "list"}, "invalid settings backend"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("MINEMODS_LOG_LEVEL", "debug")
	t.Setenv("MINEMODS_ROOT", "/from/env")
	t.Setenv("MINEMODS_SEARCH_PATHS", "a,b")

	cmd, exit, err := Parse([]string{"-log-level", "warn", "-json", "ORDER"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, CmdOrder, cmd.Name)
	assert.True(t, cmd.JSON)
	assert.Equal(t, "warn", cmd.Config.LogLevel)
	assert.Equal(t, "/from/env", cmd.Config.Root)
	assert.Equal(t, []string{"a", "b"}, cmd.Config.SearchPaths)
}

func pngBytes(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 16))))
	return buf.String()
}

// runCommand parses args against root and executes the command.
func runCommand(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd, exit, err := Parse(append([]string{"-root", root}, args...), &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)
	out := &bytes.Buffer{}
	logs := &testutil.SafeBuffer{}
	err = Execute(context.Background(), cmd, out, logs)
	return out.String(), err
}

func modTree(t *testing.T, extra map[string]string) string {
	t.Helper()
	files := map[string]string{
		"mods/alpha/mod.json":                `{"name": "Alpha", "version": "2.0", "api_version": "1.0.0", "dependencies": {"zeta": "REQUIRED"}}`,
		"mods/alpha/scripts/init.lua":        "return { initialize = function() end }",
		"mods/zeta/mod.json":                 `{"name": "Zeta", "version": "1.0", "api_version": "1.0.0"}`,
		"mods/zeta/scripts/init.lua":         "return { initialize = function() end }",
		"mods/zeta/assets/tilesets/zeta.png": pngBytes(t),
	}
	for k, v := range extra {
		files[k] = v
	}
	return testutil.TempTree(t, files)
}

func TestExecute_Schema(t *testing.T) {
	out, err := runCommand(t, t.TempDir(), "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"api_version"`)
}

func TestExecute_ListAndOrder(t *testing.T) {
	root := modTree(t, nil)

	out, err := runCommand(t, root, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAMESPACE")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "zeta")

	out, err = runCommand(t, root, "order")
	require.NoError(t, err)
	assert.Equal(t, "  1  zeta\n  2  alpha\n", out)

	out, err = runCommand(t, root, "-json", "order")
	require.NoError(t, err)
	assert.JSONEq(t, `["zeta", "alpha"]`, out)
}

func TestExecute_Load(t *testing.T) {
	root := modTree(t, nil)

	out, err := runCommand(t, root, "load")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "loaded")
	assert.NotContains(t, out, "failed")
}

func TestExecute_LoadReportsFailures(t *testing.T) {
	root := modTree(t, map[string]string{
		"mods/broken/mod.json":         `{"name": "Broken", "version": "1.0", "api_version": "1.0.0"}`,
		"mods/broken/scripts/init.lua": "error('nope')",
	})

	out, err := runCommand(t, root, "load")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Equal(t, "1 mod(s) failed to load", exitErr.Message)
	assert.Contains(t, out, "broken")
}

func TestExecute_Doctor(t *testing.T) {
	root := modTree(t, nil)
	out, err := runCommand(t, root, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "png 32x16")
	assert.Contains(t, out, "(1 scripts) after zeta")
	assert.Contains(t, out, "0 problem(s) found.")

	testutil.WriteFiles(t, root, map[string]string{
		"mods/alpha/assets/tilesets/alpha.png": "not an image",
	})
	out, err = runCommand(t, root, "doctor")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, "doctor found 1 problem(s)", exitErr.Message)
	assert.Contains(t, out, "broken  tilesets/alpha.png [alpha]")
}

func TestExecute_LoaderDisabled(t *testing.T) {
	t.Setenv("MINEMODS_ENABLE_MOD_LOADER", "false")
	root := modTree(t, nil)

	_, err := runCommand(t, root, "load")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Contains(t, exitErr.Message, "mod loader is disabled")
}
