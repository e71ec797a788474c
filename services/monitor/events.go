// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitor

import (
	"time"

	"github.com/AleutianAI/ddarchive/services/snapshot"
)

// EventType identifies an Event.
type EventType string

const (
	EventInfo            EventType = "info"
	EventError           EventType = "error"
	EventState           EventType = "state"
	EventSnapshotCreated EventType = "snapshot_created"
	EventAnchorSet       EventType = "anchor_set"
	EventRestoreDone     EventType = "restore_done"
	EventHotkey          EventType = "hotkey"
)

// Event is published on Engine.Events. Only the fields relevant to Type are set.
type Event struct {
	Type EventType
	Time time.Time

	// Message is set for info and error events.
	Message string

	// GameRunning, InRaid and CloudEnabled are set for state events.
	GameRunning  bool
	InRaid       *bool
	CloudEnabled *bool

	// Snapshot is set for snapshot_created, anchor_set and restore_done.
	Snapshot *snapshot.Info

	// PreBackup is the automatic backup taken by a restore.
	PreBackup *snapshot.Info

	// Registered reports the hotkey registration result.
	Registered bool
}

// State is the engine's view of the game, read by front ends.
type State struct {
	Running      bool
	GameRunning  bool
	InRaid       *bool
	CloudEnabled *bool
	LastError    string
}
