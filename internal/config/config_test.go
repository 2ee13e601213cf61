package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().SyncIntervalSeconds, cfg.SyncIntervalSeconds)
}

func TestLoadMergesOverFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sync_interval_s": 120, "download_folders": ["/docs"]}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.SyncIntervalSeconds)
	assert.Equal(t, []string{"/docs"}, cfg.DownloadFolders)
	assert.Equal(t, Defaults().RetryMax, cfg.RetryMax, "unset fields keep their default")
}

func TestInstanceDataDirEscapesMountPointPerAccount(t *testing.T) {
	cfg := Defaults()
	cfg.DataDir = "/var/lib/onedrivefs"
	cfg.MountPoint = "/home/alice/OneDrive"

	other := cfg
	other.MountPoint = "/home/alice/OneDrive - Work"

	assert.NotEqual(t, cfg.InstanceDataDir(), other.InstanceDataDir(), "distinct mountpoints must not share a data directory")
	assert.Equal(t, filepath.Join(cfg.InstanceDataDir(), "metadata.db"), cfg.MetadataPath())
}
