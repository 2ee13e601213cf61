// Package config loads the daemon's settings.json and layers it over
// built-in defaults using github.com/imdario/mergo: file values only
// override a default where they are explicitly set.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/imdario/mergo"
)

// Config is the full set of operator-tunable settings.
type Config struct {
	MountPoint               string   `json:"mount_point"`
	DataDir                  string   `json:"data_dir"`
	DownloadFolders          []string `json:"download_folders"`
	SyncIntervalSeconds      int      `json:"sync_interval_s"`
	DeltaIntervalSeconds     int      `json:"delta_interval_s"`
	StatusIntervalSeconds    int      `json:"status_interval_s"`
	HousekeepingIntervalSeconds int  `json:"housekeeping_interval_s"`
	HousekeepingRetentionHours int   `json:"housekeeping_retention_h"`
	LargeUploadThresholdBytes uint64  `json:"large_upload_threshold_bytes"`
	RetryBackoffBaseMS       int      `json:"retry_backoff_base_ms"`
	RetryMax                 int      `json:"retry_max"`
	LogLevel                 string   `json:"log_level"`
	LogPath                  string   `json:"log_path"`
}

// Defaults returns the built-in configuration applied under whatever the
// operator's settings.json leaves unset.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "onedrivefs")
	return Config{
		MountPoint:                  filepath.Join(home, "OneDrive"),
		DataDir:                     dataDir,
		DownloadFolders:             nil,
		SyncIntervalSeconds:         30,
		DeltaIntervalSeconds:        30,
		StatusIntervalSeconds:       10,
		HousekeepingIntervalSeconds: 3600,
		HousekeepingRetentionHours:  24,
		LargeUploadThresholdBytes:   4 * 1024 * 1024,
		RetryBackoffBaseMS:          500,
		RetryMax:                    8,
		LogLevel:                    "info",
		LogPath:                     filepath.Join(dataDir, "onedrivefs.log"),
	}
}

// Load reads settings.json at path, if present, and merges it over
// Defaults(); a missing file is not an error, it just yields the defaults
// unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fromFile Config
	if err := json.Unmarshal(raw, &fromFile); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := mergo.Merge(&cfg, fromFile, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("config: merge defaults: %w", err)
	}
	return cfg, nil
}

// InstanceDataDir is the per-mountpoint subdirectory of DataDir: escaping the
// mount path with the same systemd unit-name rules used for instantiated
// onedrivefs@.service units keeps the directory name filesystem-safe and lets
// one base DataDir serve several concurrently mounted accounts without their
// metadata stores or caches colliding.
func (c Config) InstanceDataDir() string {
	return filepath.Join(c.DataDir, unit.UnitNamePathEscape(c.MountPoint))
}

// MetadataPath is the bbolt file location under InstanceDataDir.
func (c Config) MetadataPath() string { return filepath.Join(c.InstanceDataDir(), "metadata.db") }

// ContentCacheDir is the downloaded-content directory under InstanceDataDir.
func (c Config) ContentCacheDir() string { return filepath.Join(c.InstanceDataDir(), "downloads") }

// TokenPath is where the external auth collaborator is expected to write a
// current bearer token for the daemon to read.
func (c Config) TokenPath() string { return filepath.Join(c.InstanceDataDir(), "bearer_token") }

func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func (c Config) DeltaInterval() time.Duration {
	return time.Duration(c.DeltaIntervalSeconds) * time.Second
}

func (c Config) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalSeconds) * time.Second
}

func (c Config) HousekeepingInterval() time.Duration {
	return time.Duration(c.HousekeepingIntervalSeconds) * time.Second
}

func (c Config) HousekeepingRetention() time.Duration {
	return time.Duration(c.HousekeepingRetentionHours) * time.Hour
}

func (c Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.RetryBackoffBaseMS) * time.Millisecond
}
