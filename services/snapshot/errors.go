// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBucket is returned for a bucket name outside Buckets.
	ErrUnknownBucket = errors.New("unknown bucket")

	// ErrProfileNotFound is returned when profile_N does not exist.
	ErrProfileNotFound = errors.New("profile directory not found")

	// ErrSourceChanged is returned when the save files change during a capture.
	ErrSourceChanged = errors.New("source files changed")

	// ErrCopyMismatch is returned when the staged copy differs from the source.
	ErrCopyMismatch = errors.New("copied snapshot mismatch")

	// ErrValidation is returned when a copy cannot be decoded.
	ErrValidation = errors.New("decode validation failed")

	// ErrGameRunning is returned by Restore while the game is running.
	ErrGameRunning = errors.New("game is running, close it before restore")

	// ErrSnapshotNotFound is returned when a snapshot directory is missing.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrCollision is returned when the final snapshot directory already exists.
	ErrCollision = errors.New("snapshot id collision")
)

func unknownBucket(b Bucket) error {
	return fmt.Errorf("%w: %s", ErrUnknownBucket, b)
}
