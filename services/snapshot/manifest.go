// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Entry is one file in a Manifest.
type Entry struct {
	Size    int64  `json:"size"`
	MtimeNs int64  `json:"mtime_ns"`
	SHA256  string `json:"sha256,omitempty"`
}

// Manifest maps slash-separated relative paths to file entries.
type Manifest map[string]Entry

// BuildManifest walks root and records every regular file.
//
// # Inputs
//
//   - root: directory to scan; must exist
//   - withHash: also compute SHA-256 of each file
//
// # Outputs
//
//   - Manifest: one entry per file
//   - error: missing root or read failure
func BuildManifest(root string, withHash bool) (Manifest, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("missing directory: %s: %w", root, err)
	}

	m := make(Manifest)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entry := Entry{Size: info.Size(), MtimeNs: info.ModTime().UnixNano()}
		if withHash {
			sum, err := fileSHA256(path)
			if err != nil {
				return err
			}
			entry.SHA256 = sum
		}
		m[filepath.ToSlash(rel)] = entry
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return m, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest hashes the sorted "rel|size|mtime_ns|sha256" lines of m.
func (m Manifest) Digest() string {
	keys := m.keys()
	h := sha256.New()
	for _, rel := range keys {
		e := m[rel]
		fmt.Fprintf(h, "%s|%d|%d|%s\n", rel, e.Size, e.MtimeNs, e.SHA256)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equal compares every field of every entry.
func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for rel, e := range m {
		o, ok := other[rel]
		if !ok || o != e {
			return false
		}
	}
	return true
}

// EqualForCopy compares paths, sizes and hashes. Modification times are ignored.
func (m Manifest) EqualForCopy(copied Manifest) bool {
	if len(m) != len(copied) {
		return false
	}
	for rel, e := range m {
		c, ok := copied[rel]
		if !ok || c.Size != e.Size || c.SHA256 != e.SHA256 {
			return false
		}
	}
	return true
}

// TotalSize sums entry sizes.
func (m Manifest) TotalSize() int64 {
	var total int64
	for _, e := range m {
		total += e.Size
	}
	return total
}

func (m Manifest) keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// dirSize sums regular file sizes under root, ignoring errors.
func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
