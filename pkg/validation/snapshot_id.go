// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for values that end
// up in file paths.
//
// Snapshot ids arrive from the command line and from imported archives, and
// both are joined onto the snapshots directory. Validating them up front keeps
// a crafted id from reaching outside its bucket.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxSnapshotIDLength bounds an id so it stays a single short path component.
const MaxSnapshotIDLength = 128

// snapshotIDPattern matches a single path component of letters, digits,
// underscores, dots and hyphens that does not start with a dot.
// Allows: 20250101_120000_000001_manual_click, imported-run.2
var snapshotIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// ValidateSnapshotID validates a snapshot id before it is used as a directory name.
//
// Valid ids:
//   - 1-128 characters
//   - Letters, digits, underscore, dot and hyphen
//   - No leading dot (staging and hidden directories)
//
// Example:
//
//	if err := validation.ValidateSnapshotID(id); err != nil {
//	    return fmt.Errorf("restore: %w", err)
//	}
func ValidateSnapshotID(id string) error {
	if id == "" {
		return fmt.Errorf("snapshot id cannot be empty")
	}
	if len(id) > MaxSnapshotIDLength {
		return fmt.Errorf("snapshot id is longer than %d characters", MaxSnapshotIDLength)
	}
	if !snapshotIDPattern.MatchString(id) {
		return fmt.Errorf("invalid snapshot id: %q (letters, digits, '_', '.', '-' only, no leading dot)", id)
	}
	return nil
}

// SanitizeSnapshotID trims surrounding whitespace and validates the result.
//
//	id, err := validation.SanitizeSnapshotID(args[0])
func SanitizeSnapshotID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := ValidateSnapshotID(id); err != nil {
		return "", err
	}
	return id, nil
}
