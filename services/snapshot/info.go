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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MetaFile is written into every snapshot directory.
const MetaFile = "meta.json"

const stagingPrefix = ".staging_"

// Info describes one snapshot. It is stored as meta.json.
type Info struct {
	SnapshotID      string    `json:"snapshot_id"`
	Bucket          Bucket    `json:"bucket"`
	Reason          Reason    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
	Profile         int       `json:"profile"`
	InRaidAtCapture *bool     `json:"inraid_at_capture"`
	PreRaidAnchor   bool      `json:"pre_raid_anchor"`
	IntegrityOK     bool      `json:"integrity_ok"`
	SourceHash      string    `json:"source_hash"`
	SizeBytes       int64     `json:"snapshot_size_bytes"`
	Path            string    `json:"path"`
}

// NewID returns "YYYYMMDD_HHMMSS_micro_<reason>" in local time.
func NewID(t time.Time, reason Reason) string {
	local := t.Local()
	return fmt.Sprintf("%s_%06d_%s", local.Format("20060102_150405"), local.Nanosecond()/1000, reason)
}

func writeMeta(dir string, info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), data, 0644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

// readMeta returns nil when meta.json is missing or unreadable.
func readMeta(dir string) *Info {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	if info.SnapshotID == "" || info.Path == "" {
		return nil
	}
	return &info
}

func isStaging(name string) bool {
	return strings.HasPrefix(name, stagingPrefix)
}
