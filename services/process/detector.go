// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/process"
)

// Detector reports whether the game is running.
type Detector interface {
	IsRunning(ctx context.Context) (bool, error)
}

// Lister returns the executable names of running processes.
type Lister func(ctx context.Context) ([]string, error)

// NameDetector matches running process names against Name, case-insensitively.
//
// # Description
//
// The comparison uses the base name only, so "Darkest.exe" matches a process
// reported as "darkest.exe" or "C:\Games\DD\darkest.exe". A listing error is
// returned to the caller; the monitor treats it as "not running".
type NameDetector struct {
	Name string
	List Lister
}

// NewDetector returns a NameDetector backed by gopsutil.
func NewDetector(name string) *NameDetector {
	return &NameDetector{Name: name, List: listProcessNames}
}

// IsRunning lists processes and looks for Name.
func (d *NameDetector) IsRunning(ctx context.Context) (bool, error) {
	want := strings.ToLower(strings.TrimSpace(d.Name))
	if want == "" {
		return false, fmt.Errorf("process name is empty")
	}
	names, err := d.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}
	for _, n := range names {
		if strings.ToLower(baseName(n)) == want {
			return true, nil
		}
	}
	return false, nil
}

// baseName handles both separators regardless of the host OS.
func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return filepath.Base(filepath.FromSlash(p))
}

func listProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		// processes can exit between listing and inspection
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Static is a Detector with a fixed answer. Used by tests and --assume-closed.
type Static struct {
	running atomic.Bool
}

// NewStatic returns a Static detector reporting running.
func NewStatic(running bool) *Static {
	s := &Static{}
	s.running.Store(running)
	return s
}

// Set changes the reported state.
func (s *Static) Set(running bool) {
	s.running.Store(running)
}

// IsRunning returns the fixed state.
func (s *Static) IsRunning(context.Context) (bool, error) {
	return s.running.Load(), nil
}

var (
	_ Detector = (*NameDetector)(nil)
	_ Detector = (*Static)(nil)
)
