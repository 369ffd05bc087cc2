package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestInit_Defaults(t *testing.T) {
	require.NoError(t, Init(""))

	assert.False(t, Config.DryRun)
	assert.False(t, Config.CreateParents)
	assert.False(t, Config.ComprehensiveScan)
	assert.Equal(t, "native", Config.Scanner)
	assert.Equal(t, 300*time.Second, Config.ScanTimeout)
	assert.Equal(t, 0.9, Config.FreeSpaceMargin)
	assert.True(t, Config.PreserveOwnership)
}

func TestInit_MissingFileIsFine(t *testing.T) {
	require.NoError(t, Init(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Equal(t, "native", Config.Scanner)
}

func TestInit_FileOverlay(t *testing.T) {
	path := writeConfigFile(t, `
scanner: find
free_space_margin: 0.5
comprehensive_scan: true
notifications:
  detailed: true
  service:
    discord: https://discord.com/api/webhooks/123/abc
`)

	require.NoError(t, Init(path))

	assert.Equal(t, "find", Config.Scanner)
	assert.Equal(t, 0.5, Config.FreeSpaceMargin)
	assert.True(t, Config.ComprehensiveScan)
	assert.True(t, Config.Notifications.Detailed)
	assert.Equal(t, "https://discord.com/api/webhooks/123/abc", Config.Notifications.Service.Discord)

	// untouched keys keep their defaults
	assert.True(t, Config.PreserveOwnership)
	assert.Equal(t, 300*time.Second, Config.ScanTimeout)
}

func TestInit_OverlayDoesNotLeakBetweenLoads(t *testing.T) {
	require.NoError(t, Init(writeConfigFile(t, "scanner: find\n")))
	require.Equal(t, "find", Config.Scanner)

	require.NoError(t, Init(""))
	assert.Equal(t, "native", Config.Scanner)
}

func TestInit_RejectsBadMargin(t *testing.T) {
	err := Init(writeConfigFile(t, "free_space_margin: 1.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "free_space_margin")

	err = Init(writeConfigFile(t, "free_space_margin: 0\n"))
	assert.Error(t, err)
}

func TestInit_RejectsUnknownScanner(t *testing.T) {
	err := Init(writeConfigFile(t, "scanner: locate\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scanner")
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if path == "" {
		t.Skip("no user config dir in this environment")
	}
	assert.Equal(t, filepath.Join("smartmove", "config.yaml"), filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))
}
