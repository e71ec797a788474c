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
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrSaveRootMissing is returned when a selected save root does not exist.
var ErrSaveRootMissing = errors.New("save_root does not exist")

var profileDirPattern = regexp.MustCompile(`^profile_(\d+)$`)

// Detector finds Steam save roots for the game.
//
// # Description
//
// Candidates are <userdata>/<steam_id>/262060/remote directories under every
// known Steam userdata root. They are ranked by how much they look like a live
// save root: 10 points per profile_N folder, 2 for steam_init.json, 1 for
// profile_0, ties broken by the newest modification time.
type Detector struct {
	// Roots returns Steam userdata directories to search.
	Roots func() []string
}

// NewDetector returns a Detector that searches the registry-reported Steam
// path and the usual install locations.
func NewDetector() *Detector {
	return &Detector{Roots: steamUserdataRoots}
}

// Detect returns the best-ranked candidate.
func (d *Detector) Detect() (string, bool) {
	candidates := d.Candidates()
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0], true
}

// Candidates returns every save root candidate, best first.
func (d *Detector) Candidates() []string {
	if d == nil || d.Roots == nil {
		return nil
	}

	var found []string
	seen := make(map[string]bool)
	for _, userdata := range existingDirs(d.Roots()) {
		matches, err := filepath.Glob(filepath.Join(userdata, "*", SteamAppID, "remote"))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if !isDir(m) {
				continue
			}
			abs, err := filepath.Abs(m)
			if err != nil {
				continue
			}
			key := strings.ToLower(abs)
			if seen[key] {
				continue
			}
			seen[key] = true
			found = append(found, abs)
		}
	}

	type scored struct {
		path  string
		score int
		mtime time.Time
	}
	ranked := make([]scored, 0, len(found))
	for _, p := range found {
		s, mt := scoreSaveRoot(p)
		ranked = append(ranked, scored{path: p, score: s, mtime: mt})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].mtime.After(ranked[j].mtime)
	})

	result := make([]string, len(ranked))
	for i, r := range ranked {
		result[i] = r.path
	}
	return result
}

func scoreSaveRoot(path string) (int, time.Time) {
	score := len(DiscoverProfiles(path)) * 10
	if fileExists(filepath.Join(path, "steam_init.json")) {
		score += 2
	}
	if fileExists(filepath.Join(path, ProfileDirName(0))) {
		score++
	}
	var mtime time.Time
	if info, err := os.Stat(path); err == nil {
		mtime = info.ModTime()
	}
	return score, mtime
}

// steamUserdataRoots lists candidate userdata directories, registry first.
func steamUserdataRoots() []string {
	var roots []string
	if steam := steamPathFromRegistry(); steam != "" {
		roots = append(roots, filepath.Join(steam, "userdata"))
	}
	if pf86 := os.Getenv("ProgramFiles(x86)"); pf86 != "" {
		roots = append(roots, filepath.Join(pf86, "Steam", "userdata"))
	}
	if pf := os.Getenv("ProgramFiles"); pf != "" {
		roots = append(roots, filepath.Join(pf, "Steam", "userdata"))
	}
	roots = append(roots, filepath.FromSlash("C:/Steam/userdata"))
	return roots
}

// existingDirs de-duplicates case-insensitively and drops missing paths.
func existingDirs(paths []string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, p := range paths {
		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		if isDir(p) {
			result = append(result, p)
		}
	}
	return result
}

// DiscoverProfiles returns the sorted profile numbers found under saveRoot.
func DiscoverProfiles(saveRoot string) []int {
	entries, err := os.ReadDir(saveRoot)
	if err != nil {
		return nil
	}
	seen := make(map[int]bool)
	var result []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := profileDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		result = append(result, n)
	}
	sort.Ints(result)
	return result
}

// NormalizeSaveRoot maps a user-picked directory onto the "remote" save root.
//
// # Description
//
// Accepts any of these and returns the matching remote directory:
//
//   - .../remote/profile_N    -> .../remote
//   - .../remote              -> unchanged
//   - .../262060              -> .../262060/remote (when it exists)
//   - .../<steam_id>          -> .../<steam_id>/262060/remote (when it exists)
//   - .../userdata            -> the single .../userdata/*/262060/remote match
//
// Anything else is returned as an absolute path unchanged.
func NormalizeSaveRoot(path string) (string, error) {
	val := expandHome(path)
	base := filepath.Base(val)
	parent := filepath.Base(filepath.Dir(val))

	switch {
	case profileDirPattern.MatchString(base) && strings.EqualFold(parent, "remote"):
		return filepath.Abs(filepath.Dir(val))
	case strings.EqualFold(base, "remote"):
		return filepath.Abs(val)
	case base == SteamAppID && isDir(filepath.Join(val, "remote")):
		return filepath.Abs(filepath.Join(val, "remote"))
	case isDigits(base) && isDir(filepath.Join(val, SteamAppID, "remote")):
		return filepath.Abs(filepath.Join(val, SteamAppID, "remote"))
	case strings.EqualFold(base, "userdata"):
		matches, _ := filepath.Glob(filepath.Join(val, "*", SteamAppID, "remote"))
		var dirs []string
		for _, m := range matches {
			if isDir(m) {
				dirs = append(dirs, m)
			}
		}
		if len(dirs) == 1 {
			return filepath.Abs(dirs[0])
		}
	}
	return filepath.Abs(val)
}

// SaveRootLooksValid reports whether path is a directory holding a profile or steam_init.json.
func SaveRootLooksValid(path string) bool {
	if !isDir(path) {
		return false
	}
	if len(DiscoverProfiles(path)) > 0 {
		return true
	}
	return fileExists(filepath.Join(path, "steam_init.json"))
}

// SyncProfileToExisting switches to the first existing profile when the
// configured one is absent from the save root.
func SyncProfileToExisting(cfg *AppConfig) {
	if cfg.SaveRoot == "" {
		return
	}
	profiles := DiscoverProfiles(cfg.SaveRoot)
	if len(profiles) == 0 {
		return
	}
	for _, p := range profiles {
		if p == cfg.Profile {
			return
		}
	}
	cfg.Profile = profiles[0]
}

// SetSaveRoot normalises selected, requires it to exist and stores it in cfg.
func SetSaveRoot(cfg *AppConfig, selected string) (string, error) {
	root, err := NormalizeSaveRoot(selected)
	if err != nil {
		return "", fmt.Errorf("normalize %s: %w", selected, err)
	}
	if !isDir(root) {
		return "", fmt.Errorf("%w: %s", ErrSaveRootMissing, root)
	}
	cfg.SaveRoot = root
	SyncProfileToExisting(cfg)
	return root, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
