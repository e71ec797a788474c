// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decoder runs DDSaveEditor.jar to turn the game's binary save files
// into JSON and reads the few fields ddarchive needs from the result.
//
// The save format itself is never parsed here; the jar owns it.
package decoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/ddarchive/services/process"
)

const (
	// PersistGameFile holds base_root.inraid.
	PersistGameFile = "persist.game.json"

	// SteamInitFile holds base_root.steam_cloud_enabled.
	SteamInitFile = "steam_init.json"
)

var (
	// ErrJarNotFound is returned when DDSaveEditor.jar is missing.
	ErrJarNotFound = errors.New("DDSaveEditor.jar not found")

	// ErrJavaNotFound is returned when the java executable cannot be started.
	ErrJavaNotFound = errors.New("java runtime not found")

	// ErrMissingFile is returned when the file to decode does not exist.
	ErrMissingFile = errors.New("missing file")
)

// Decoder invokes the save editor jar through a process.Runner.
type Decoder struct {
	JarPath string
	JavaBin string
	Runner  process.Runner

	// TempDir is where per-call scratch directories are created. Default: os.TempDir().
	TempDir string
}

// New returns a Decoder. An empty javaBin means "java".
func New(jarPath, javaBin string, runner process.Runner) *Decoder {
	if javaBin == "" {
		javaBin = "java"
	}
	return &Decoder{JarPath: jarPath, JavaBin: javaBin, Runner: runner}
}

// EnsureReady checks that the jar exists and java can be started.
//
// # Description
//
// Runs "java -version". Only a failure to start the executable counts as
// ErrJavaNotFound; a non-zero exit from an installed java is accepted.
//
// # Outputs
//
//   - error: ErrJarNotFound or ErrJavaNotFound (wrapped), nil when ready
func (d *Decoder) EnsureReady(ctx context.Context) error {
	if _, err := os.Stat(d.JarPath); err != nil {
		return fmt.Errorf("%w: %s", ErrJarNotFound, d.JarPath)
	}

	if _, err := d.Runner.Run(ctx, d.JavaBin, "-version"); err != nil {
		var cmdErr *process.CommandError
		if errors.As(err, &cmdErr) && exited(cmdErr) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrJavaNotFound, d.JavaBin, err)
	}
	return nil
}

// exited reports whether the command started and returned an exit status.
func exited(cmdErr *process.CommandError) bool {
	var exitErr interface{ ExitCode() int }
	return errors.As(cmdErr.Err, &exitErr)
}

// DecodeFile decodes src and returns the top-level JSON object.
//
// # Description
//
// Runs "java -jar <jar> decode -o <tmp>/decoded.json <src>" inside a fresh
// dd_decode_* scratch directory that is removed afterwards.
//
// # Inputs
//
//   - ctx: cancels the java process
//   - src: save file to decode
//
// # Outputs
//
//   - map[string]any: decoded document
//   - error: ErrMissingFile, "decode failed for <name>: <output>", or a JSON error
func (d *Decoder) DecodeFile(ctx context.Context, src string) (map[string]any, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingFile, src)
	}

	tmpDir, err := os.MkdirTemp(d.TempDir, "dd_decode_")
	if err != nil {
		return nil, fmt.Errorf("create decode dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outFile := filepath.Join(tmpDir, "decoded.json")
	if _, err := d.Runner.Run(ctx, d.JavaBin, "-jar", d.JarPath, "decode", "-o", outFile, src); err != nil {
		var cmdErr *process.CommandError
		if errors.As(err, &cmdErr) {
			return nil, fmt.Errorf("decode failed for %s: %s", filepath.Base(src), cmdErr.Output())
		}
		return nil, fmt.Errorf("decode failed for %s: %w", filepath.Base(src), err)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("read decoded %s: %w", filepath.Base(src), err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("parse decoded %s: %w", filepath.Base(src), err)
	}
	return decoded, nil
}

// ReadInRaid returns base_root.inraid from <profileDir>/persist.game.json.
// The result is nil when the field is absent or not a boolean.
func (d *Decoder) ReadInRaid(ctx context.Context, profileDir string) (*bool, error) {
	decoded, err := d.DecodeFile(ctx, filepath.Join(profileDir, PersistGameFile))
	if err != nil {
		return nil, err
	}
	return baseRootBool(decoded, "inraid"), nil
}

// ReadSteamCloudEnabled returns base_root.steam_cloud_enabled from
// <remoteRoot>/steam_init.json, or nil when the file does not exist.
func (d *Decoder) ReadSteamCloudEnabled(ctx context.Context, remoteRoot string) (*bool, error) {
	initFile := filepath.Join(remoteRoot, SteamInitFile)
	if _, err := os.Stat(initFile); err != nil {
		return nil, nil
	}
	decoded, err := d.DecodeFile(ctx, initFile)
	if err != nil {
		return nil, err
	}
	return baseRootBool(decoded, "steam_cloud_enabled"), nil
}

func baseRootBool(decoded map[string]any, key string) *bool {
	root, ok := decoded["base_root"].(map[string]any)
	if !ok {
		return nil
	}
	v, ok := root[key].(bool)
	if !ok {
		return nil
	}
	return &v
}
