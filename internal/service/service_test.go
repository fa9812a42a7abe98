package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustArgs(t *testing.T, opts Options) []string {
	t.Helper()
	args, err := serviceArgs(opts)
	require.NoError(t, err)
	return args
}

func TestServiceArgs(t *testing.T) {
	assert.Equal(t, []string{"serve"}, mustArgs(t, Options{}))

	abs := filepath.Join(t.TempDir(), "nfc.yaml")
	assert.Equal(t, []string{"serve", "--config", abs}, mustArgs(t, Options{ConfigPath: abs}))
}

func TestServiceArgsRelativeConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	args := mustArgs(t, Options{ConfigPath: "nfc.yaml"})
	require.Len(t, args, 3)
	assert.True(t, filepath.IsAbs(args[2]), "config path %q should be absolute", args[2])

	want, err := filepath.Abs("nfc.yaml")
	require.NoError(t, err)
	assert.Equal(t, want, args[2])

	unit, err := render("systemd", systemdTemplate, unitData{
		ExecutablePath: "/usr/local/bin/nfc-reader",
		ArgList:        args,
	})
	require.NoError(t, err)
	assert.Contains(t, unit, "serve --config "+want)
	assert.NotContains(t, unit, "--config nfc.yaml")
}

func TestRenderSystemdUnit(t *testing.T) {
	unit, err := render("systemd", systemdTemplate, unitData{
		ExecutablePath: "/usr/local/bin/nfc-reader",
		ArgList:        []string{"serve", "--config", "/home/me/My Config.yaml"},
	})
	require.NoError(t, err)

	assert.Contains(t, unit, `ExecStart=/usr/local/bin/nfc-reader serve --config "/home/me/My Config.yaml"`)
	assert.Contains(t, unit, "WantedBy=default.target")
}

func TestRenderLaunchAgent(t *testing.T) {
	plist, err := render("plist", plistTemplate, unitData{
		Label:          launchAgentLabel,
		ExecutablePath: "/Applications/nfc-reader",
		LogPath:        "/tmp/logs",
		WorkingDir:     "/Applications",
		ArgList:        mustArgs(t, Options{}),
	})
	require.NoError(t, err)

	assert.Contains(t, plist, "<string>com.simplyprint.nfc-reader</string>")
	assert.Contains(t, plist, "<string>/Applications/nfc-reader</string>\n        <string>serve</string>\n    </array>")
	assert.Contains(t, plist, "<string>/tmp/logs/nfc-reader.err</string>")
}

func TestWriteUnit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "nfc-reader.service")

	require.NoError(t, writeUnit(path, "[Unit]\n"))
	assert.True(t, fileExists(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[Unit]\n", string(b))
}
