// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// SteamAppID is Darkest Dungeon's Steam application id.
const SteamAppID = "262060"

// EnvPrefix prefixes every environment override, e.g. DDARCHIVE_SAVE_ROOT.
const EnvPrefix = "DDARCHIVE_"

// AppConfig is the on-disk configuration (config.yaml).
type AppConfig struct {
	// SaveRoot is the Steam "remote" directory holding profile_N folders.
	SaveRoot string `yaml:"save_root" env:"SAVE_ROOT"`

	// Profile selects profile_<Profile> under SaveRoot.
	Profile int `yaml:"profile" env:"PROFILE" validate:"gte=0"`

	// JarPath locates DDSaveEditor.jar, relative to the config directory unless absolute.
	JarPath string `yaml:"jar_path" env:"JAR_PATH" validate:"required"`

	// JavaBin is the java executable used to run the jar.
	JavaBin string `yaml:"java_bin" env:"JAVA_BIN" validate:"required"`

	// GameProcess is the executable name of the running game.
	GameProcess string `yaml:"game_process" env:"GAME_PROCESS" validate:"required"`

	// Hotkey is the global key that requests a runtime snapshot (F1-F12).
	Hotkey string `yaml:"hotkey" env:"HOTKEY" validate:"omitempty,startswith=F"`

	StatePollIntervalMs       int `yaml:"state_poll_interval_ms" env:"STATE_POLL_INTERVAL_MS" validate:"gt=0"`
	InRaidStatePollIntervalMs int `yaml:"inraid_state_poll_interval_ms" env:"INRAID_STATE_POLL_INTERVAL_MS" validate:"gt=0"`
	RuntimeSnapshotIntervalMs int `yaml:"runtime_snapshot_interval_ms" env:"RUNTIME_SNAPSHOT_INTERVAL_MS" validate:"gt=0"`
	RetentionPerBucket        int `yaml:"retention_per_bucket" env:"RETENTION_PER_BUCKET" validate:"gte=1"`
	IntegrityRetry            int `yaml:"integrity_retry" env:"INTEGRITY_RETRY" validate:"gte=1"`
	QuietWindowMs             int `yaml:"quiet_window_ms" env:"QUIET_WINDOW_MS" validate:"gte=0"`

	SnapshotsDir string `yaml:"snapshots_dir" env:"SNAPSHOTS_DIR" validate:"required"`
	LogsDir      string `yaml:"logs_dir" env:"LOGS_DIR" validate:"required"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`

	// Export configures off-site copies of snapshot archives.
	Export ExportConfig `yaml:"export" envPrefix:"EXPORT_"`

	baseDir string
}

// ExportConfig configures the optional GCS and S3-compatible uploaders.
type ExportConfig struct {
	GCSBucket      string `yaml:"gcs_bucket,omitempty" env:"GCS_BUCKET"`
	GCSCredentials string `yaml:"gcs_credentials,omitempty" env:"GCS_CREDENTIALS"`
	S3Bucket       string `yaml:"s3_bucket,omitempty" env:"S3_BUCKET"`
	S3Endpoint     string `yaml:"s3_endpoint,omitempty" env:"S3_ENDPOINT"`
	S3Region       string `yaml:"s3_region,omitempty" env:"S3_REGION"`
	S3AccessKeyID  string `yaml:"-" env:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string `yaml:"-" env:"S3_SECRET_KEY"`
	Prefix         string `yaml:"prefix,omitempty" env:"PREFIX"`
}

// DefaultConfig returns the values written on first run.
func DefaultConfig() AppConfig {
	return AppConfig{
		SaveRoot:                  "",
		Profile:                   0,
		JarPath:                   filepath.Join("tools", "DDSaveEditor.jar"),
		JavaBin:                   "java",
		GameProcess:               "Darkest.exe",
		Hotkey:                    "F5",
		StatePollIntervalMs:       1000,
		InRaidStatePollIntervalMs: 10000,
		RuntimeSnapshotIntervalMs: 5000,
		RetentionPerBucket:        50,
		IntegrityRetry:            3,
		QuietWindowMs:             800,
		SnapshotsDir:              "snapshots",
		LogsDir:                   "logs",
		LogLevel:                  "info",
		Export:                    ExportConfig{Prefix: "ddarchive"},
	}
}

// BaseDir is the directory relative paths resolve against (the config file's directory).
func (c *AppConfig) BaseDir() string {
	return c.baseDir
}

// SetBaseDir overrides the resolution directory. Load sets it automatically.
func (c *AppConfig) SetBaseDir(dir string) {
	c.baseDir = dir
}

// ProfileDir is <save_root>/profile_<profile>.
func (c *AppConfig) ProfileDir() string {
	return filepath.Join(c.SaveRoot, ProfileDirName(c.Profile))
}

// SnapshotsRoot resolves SnapshotsDir.
func (c *AppConfig) SnapshotsRoot() string {
	return c.resolve(c.SnapshotsDir)
}

// LogsRoot resolves LogsDir.
func (c *AppConfig) LogsRoot() string {
	return c.resolve(c.LogsDir)
}

// JarFile resolves JarPath.
func (c *AppConfig) JarFile() string {
	return c.resolve(c.JarPath)
}

func (c *AppConfig) resolve(p string) string {
	if filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// StatePollInterval is the monitor tick while out of raid.
func (c *AppConfig) StatePollInterval() time.Duration {
	return ms(c.StatePollIntervalMs)
}

// InRaidStatePollInterval is the slower tick and inraid read interval while in raid.
func (c *AppConfig) InRaidStatePollInterval() time.Duration {
	return ms(c.InRaidStatePollIntervalMs)
}

// RuntimeSnapshotInterval spaces poll snapshots while the game runs out of raid.
func (c *AppConfig) RuntimeSnapshotInterval() time.Duration {
	return ms(c.RuntimeSnapshotIntervalMs)
}

// QuietWindow is how long the profile must stay unchanged before a copy.
func (c *AppConfig) QuietWindow() time.Duration {
	return ms(c.QuietWindowMs)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// ProfileDirName returns "profile_<n>".
func ProfileDirName(n int) string {
	return fmt.Sprintf("profile_%d", n)
}
