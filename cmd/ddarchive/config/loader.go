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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the config file created next to the executable.
const FileName = "config.yaml"

var (
	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("invalid config")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Load reads the config at path, creating it with defaults on first run.
//
// # Description
//
// Decodes config.yaml on top of DefaultConfig, applies DDARCHIVE_* environment
// overrides and validates the result. When save_root is empty or points to a
// missing directory, the Steam save root is auto-detected; a detected root is
// written back to the file so later runs skip detection.
//
// # Inputs
//
//   - path: config file path
//   - detector: save-root detector; nil disables auto-detection
//
// # Outputs
//
//   - *AppConfig: loaded configuration with BaseDir set to the file's directory
//   - error: read, parse, env, or validation failure
func Load(path string, detector *Detector) (*AppConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		if err := createDefault(absPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", absPath, err)
	}
	cfg.SaveRoot = strings.TrimSpace(cfg.SaveRoot)

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.baseDir = filepath.Dir(absPath)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	if detector != nil && needsDetect(cfg.SaveRoot) {
		if root, ok := detector.Detect(); ok {
			profile := cfg.Profile
			cfg.SaveRoot = root
			SyncProfileToExisting(&cfg)
			if err := persistDetected(absPath, data, root, profile, cfg.Profile); err != nil {
				return nil, err
			}
		}
	}

	return &cfg, nil
}

// ApplyEnv overlays DDARCHIVE_* environment variables onto cfg.
// Unset variables leave fields untouched.
func ApplyEnv(cfg *AppConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	return nil
}

// Validate normalises the hotkey name and checks field ranges.
func Validate(cfg *AppConfig) error {
	cfg.Hotkey = strings.ToUpper(strings.TrimSpace(cfg.Hotkey))
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Save writes cfg to path as YAML.
func Save(cfg *AppConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// persistDetected writes a detected save root back to the file. Only the
// file's own settings are rewritten, so environment overrides stay out of it.
// The profile is written only when detection moved it.
func persistDetected(path string, data []byte, root string, before, after int) error {
	onDisk := DefaultConfig()
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	onDisk.SaveRoot = root
	if after != before {
		onDisk.Profile = after
	}
	return Save(&onDisk, path)
}

func createDefault(path string) error {
	cfg := DefaultConfig()
	return Save(&cfg, path)
}

func needsDetect(saveRoot string) bool {
	if saveRoot == "" {
		return true
	}
	_, err := os.Stat(saveRoot)
	return err != nil
}

// DefaultPath returns config.yaml next to the running executable,
// falling back to the working directory.
func DefaultPath() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Join(filepath.Dir(exe), FileName)
	}
	return FileName
}
