// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ddarchive/services/monitor"
	"github.com/AleutianAI/ddarchive/services/snapshot"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeEngine struct {
	mu        sync.Mutex
	events    chan monitor.Event
	state     monitor.State
	calls     []string
	manualErr error
	restored  []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan monitor.Event, 8)}
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) Events() <-chan monitor.Event { return e.events }

func (e *fakeEngine) State() monitor.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeEngine) Start(ctx context.Context, withHotkey bool) error {
	e.record("start")
	e.mu.Lock()
	e.state.Running = true
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) Stop() error {
	e.record("stop")
	e.mu.Lock()
	e.state.Running = false
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) TriggerManualClosed(ctx context.Context) (*snapshot.Info, error) {
	e.record("manual")
	if e.manualErr != nil {
		return nil, e.manualErr
	}
	return &snapshot.Info{SnapshotID: "manual-1", Bucket: snapshot.BucketClosedManual}, nil
}

func (e *fakeEngine) TriggerF5(ctx context.Context) (*snapshot.Info, error) {
	e.record("trigger_f5")
	return nil, nil
}

func (e *fakeEngine) RequestF5() { e.record("request_f5") }

func (e *fakeEngine) Restore(ctx context.Context, target snapshot.Info) (*snapshot.Info, error) {
	e.record("restore")
	e.mu.Lock()
	e.restored = append(e.restored, target.SnapshotID)
	e.mu.Unlock()
	return &snapshot.Info{SnapshotID: "backup-1"}, nil
}

func (e *fakeEngine) ProfileChanged() { e.record("profile_changed") }

func (e *fakeEngine) setRunning(v bool) {
	e.mu.Lock()
	e.state.Running = v
	e.mu.Unlock()
}

type fakeSnapshots struct {
	profile  int
	byBucket map[snapshot.Bucket][]snapshot.Info
}

func (s *fakeSnapshots) List(b snapshot.Bucket, includeInvalid bool) ([]snapshot.Info, error) {
	return s.byBucket[b], nil
}
func (s *fakeSnapshots) Profile() int     { return s.profile }
func (s *fakeSnapshots) SetProfile(n int) { s.profile = n }
func (s *fakeSnapshots) SaveRoot() string { return "/saves/remote" }

func boolPtr(v bool) *bool { return &v }

func newTestModel(t *testing.T) (Model, *fakeEngine, *fakeSnapshots) {
	t.Helper()
	now := time.Date(2025, 3, 1, 10, 15, 0, 0, time.Local)
	snaps := &fakeSnapshots{byBucket: map[snapshot.Bucket][]snapshot.Info{
		snapshot.BucketClosedManual: {
			{SnapshotID: "c2", Bucket: snapshot.BucketClosedManual, Reason: snapshot.ReasonManualClick, CreatedAt: now, IntegrityOK: true, InRaidAtCapture: boolPtr(false)},
			{SnapshotID: "c1", Bucket: snapshot.BucketClosedManual, Reason: snapshot.ReasonManualClick, CreatedAt: now.Add(-time.Hour), IntegrityOK: false},
		},
		snapshot.BucketRuntimeF5: {
			{SnapshotID: "f1", Bucket: snapshot.BucketRuntimeF5, Reason: snapshot.ReasonHotkeyF5, CreatedAt: now, IntegrityOK: true},
		},
	}}
	engine := newFakeEngine()
	m := New(context.Background(), engine, snaps, Config{
		Profiles: func() []int { return []int{0, 1, 3} },
	})
	return m, engine, snaps
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, s string) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key(s))
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(Model)
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_LoadsFirstBucket(t *testing.T) {
	m, _, _ := newTestModel(t)
	assert.Equal(t, snapshot.BucketClosedManual, m.Bucket())
	require.Len(t, m.Rows(), 2)
	assert.Equal(t, "c2", m.Rows()[0].SnapshotID)

	view := m.View()
	assert.Contains(t, view, "/saves/remote")
	assert.Contains(t, view, "profile_0")
	assert.Contains(t, view, "Closed-game saves")
	assert.Contains(t, view, "INVALID")
}

func TestTabs(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, _ = press(t, m, "tab")
	assert.Equal(t, snapshot.BucketRuntimeF5, m.Bucket())
	require.Len(t, m.Rows(), 1)

	m, _ = press(t, m, "tab")
	assert.Equal(t, snapshot.BucketPreRaidAuto, m.Bucket())
	assert.Empty(t, m.Rows())

	m, _ = press(t, m, "tab")
	assert.Equal(t, snapshot.BucketClosedManual, m.Bucket())

	m, _ = press(t, m, "shift+tab")
	assert.Equal(t, snapshot.BucketPreRaidAuto, m.Bucket())
}

func TestRestore_ConfirmYes(t *testing.T) {
	m, engine, _ := newTestModel(t)

	m, cmd := press(t, m, "r")
	assert.Nil(t, cmd)
	require.True(t, m.Confirming())
	assert.Contains(t, m.View(), "Restore c2?")

	m, cmd = press(t, m, "y")
	assert.False(t, m.Confirming())
	m = run(t, m, cmd)

	assert.Equal(t, []string{"c2"}, engine.restored)
	assert.Contains(t, m.Log(), "restored c2 (backup backup-1)")
}

func TestRestore_ConfirmNo(t *testing.T) {
	m, engine, _ := newTestModel(t)

	m, _ = press(t, m, "r")
	m, cmd := press(t, m, "n")
	assert.Nil(t, cmd)
	assert.False(t, m.Confirming())
	assert.Empty(t, engine.restored)
	assert.Contains(t, m.Log(), "restore cancelled")
}

func TestRestore_InvalidSnapshotRefused(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, _ = press(t, m, "down")
	m, _ = press(t, m, "r")
	assert.False(t, m.Confirming())
	assert.Contains(t, m.Log(), "snapshot failed integrity check and cannot be restored")
}

func TestRestore_NothingSelected(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = press(t, m, "shift+tab")
	m, _ = press(t, m, "r")
	assert.False(t, m.Confirming())
	assert.Contains(t, m.Log(), "no snapshot selected")
}

func TestManualSave(t *testing.T) {
	m, engine, _ := newTestModel(t)

	m, cmd := press(t, m, "m")
	m = run(t, m, cmd)
	assert.Contains(t, m.Log(), "snapshot saved: manual-1")

	engine.manualErr = monitor.ErrGameRunning
	m, cmd = press(t, m, "m")
	m = run(t, m, cmd)
	assert.Contains(t, m.Log(), "game is running; close it before a closed-game save")

	engine.manualErr = errors.New("disk full")
	m, cmd = press(t, m, "m")
	m = run(t, m, cmd)
	assert.Contains(t, m.Log(), "error: manual snapshot failed: disk full")
}

func TestF5Key(t *testing.T) {
	m, engine, _ := newTestModel(t)

	m, cmd := press(t, m, "f")
	run(t, m, cmd)
	assert.Equal(t, []string{"trigger_f5"}, engine.Calls())

	engine.setRunning(true)
	_, cmd = press(t, m, "f")
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"trigger_f5", "request_f5"}, engine.Calls())
}

func TestToggleMonitor(t *testing.T) {
	m, engine, _ := newTestModel(t)

	m, cmd := press(t, m, "s")
	m = run(t, m, cmd)
	assert.True(t, engine.State().Running)
	assert.Contains(t, m.View(), "running")

	m, cmd = press(t, m, "s")
	run(t, m, cmd)
	assert.False(t, engine.State().Running)
	assert.Equal(t, []string{"start", "stop"}, engine.Calls())
}

func TestCycleProfile(t *testing.T) {
	m, engine, snaps := newTestModel(t)
	var saved []int
	m.config.SaveProfile = func(n int) error {
		saved = append(saved, n)
		return nil
	}

	m, _ = press(t, m, "p")
	assert.Equal(t, 1, snaps.profile)
	m, _ = press(t, m, "p")
	assert.Equal(t, 3, snaps.profile)
	m, _ = press(t, m, "p")
	assert.Equal(t, 0, snaps.profile)

	assert.Equal(t, []int{1, 3, 0}, saved)
	assert.Equal(t, []string{"profile_changed", "profile_changed", "profile_changed"}, engine.Calls())
	assert.Contains(t, m.View(), "profile_0")
}

func TestEvents(t *testing.T) {
	m, engine, snaps := newTestModel(t)

	engine.events <- monitor.Event{Type: monitor.EventState, GameRunning: true, InRaid: boolPtr(true), CloudEnabled: boolPtr(false)}
	cmd := m.Init()
	require.NotNil(t, cmd)
	next, cmd := m.Update(cmd())
	m = next.(Model)
	assert.NotNil(t, cmd, "event pump re-arms")

	view := m.View()
	assert.Contains(t, view, "In raid: yes")
	assert.Contains(t, view, "Steam Cloud: off")

	snaps.byBucket[snapshot.BucketClosedManual] = append(snaps.byBucket[snapshot.BucketClosedManual],
		snapshot.Info{SnapshotID: "c0", Bucket: snapshot.BucketClosedManual, IntegrityOK: true})
	next, _ = m.Update(EventMsg{Event: monitor.Event{
		Type:     monitor.EventSnapshotCreated,
		Snapshot: &snapshot.Info{SnapshotID: "c0", Bucket: snapshot.BucketClosedManual},
	}})
	m = next.(Model)
	assert.Len(t, m.Rows(), 3)
	assert.Contains(t, m.Log(), "snapshot created [Closed-game saves]: c0")

	next, _ = m.Update(EventMsg{Event: monitor.Event{Type: monitor.EventHotkey, Registered: false}})
	m = next.(Model)
	assert.Contains(t, m.Log(), "F5 hotkey unavailable")
}

func TestLogIsBounded(t *testing.T) {
	m, _, _ := newTestModel(t)
	for i := 0; i < maxLogLines+4; i++ {
		next, _ := m.Update(ActionMsg{Text: strings.Repeat("x", i+1)})
		m = next.(Model)
	}
	require.Len(t, m.Log(), maxLogLines)
	assert.Equal(t, strings.Repeat("x", maxLogLines+4), m.Log()[maxLogLines-1])
}

func TestQuitStopsMonitor(t *testing.T) {
	m, engine, _ := newTestModel(t)
	engine.setRunning(true)

	m, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, []string{"stop"}, engine.Calls())
	assert.Empty(t, m.View())
}
