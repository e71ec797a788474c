// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

// Bucket groups snapshots by how they were taken.
type Bucket string

const (
	// BucketClosedManual holds snapshots taken with the game closed.
	BucketClosedManual Bucket = "closed_manual"

	// BucketRuntimeF5 holds hotkey snapshots taken while the game runs.
	BucketRuntimeF5 Bucket = "runtime_f5"

	// BucketPreRaidAuto holds the last poll snapshot before each raid.
	BucketPreRaidAuto Bucket = "pre_raid_auto"

	// BucketRuntimePollTemp is the rolling poll snapshot. Never displayed.
	BucketRuntimePollTemp Bucket = "_runtime_poll_temp"

	// legacyPollBucket was used by older releases and is cleared on start.
	legacyPollBucket Bucket = "runtime_poll"
)

// Buckets lists every bucket in display order followed by the temp bucket.
var Buckets = []Bucket{BucketClosedManual, BucketRuntimeF5, BucketPreRaidAuto, BucketRuntimePollTemp}

// DisplayBuckets lists the buckets shown to the user.
var DisplayBuckets = []Bucket{BucketClosedManual, BucketRuntimeF5, BucketPreRaidAuto}

var bucketLabels = map[Bucket]string{
	BucketClosedManual:    "Closed-game saves",
	BucketRuntimeF5:       "Runtime F5 saves",
	BucketPreRaidAuto:     "Pre-raid auto saves",
	BucketRuntimePollTemp: "Runtime poll (temporary)",
}

// Label returns the human-readable bucket name.
func (b Bucket) Label() string {
	if l, ok := bucketLabels[b]; ok {
		return l
	}
	return string(b)
}

// Valid reports whether b is one of Buckets.
func (b Bucket) Valid() bool {
	for _, known := range Buckets {
		if b == known {
			return true
		}
	}
	return false
}

// ParseBucket accepts a bucket name and returns ErrUnknownBucket otherwise.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(s)
	if !b.Valid() {
		return "", unknownBucket(b)
	}
	return b, nil
}

// Reason records why a snapshot was taken.
type Reason string

const (
	ReasonManualClick      Reason = "manual_click"
	ReasonHotkeyF5         Reason = "hotkey_f5"
	ReasonPoll             Reason = "poll"
	ReasonPreRestoreBackup Reason = "pre_restore_backup"
	ReasonPreRaidAuto      Reason = "pre_raid_auto"
	ReasonUnknown          Reason = "unknown"
)

var reasonLabels = map[Reason]string{
	ReasonManualClick:      "Manual save (game closed)",
	ReasonHotkeyF5:         "Manual F5 save",
	ReasonPoll:             "Runtime poll (temporary)",
	ReasonPreRestoreBackup: "Automatic backup before restore",
	ReasonPreRaidAuto:      "Last automatic save before raid",
	ReasonUnknown:          "Unknown",
}

// Label returns the human-readable reason.
func (r Reason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return string(r)
}
