// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor watches the game while it runs and takes snapshots at the
// right moments.
//
// # Behavior
//
// A single loop polls the game process and the profile's in-raid flag:
//
//   - while the game runs out of raid, a deduplicated poll snapshot is kept
//     in the temp bucket every RuntimeSnapshotInterval
//   - on the town-to-raid transition, the latest poll snapshot is promoted
//     to the pre-raid anchor
//   - a hotkey (F5 by default) requests a runtime snapshot
//
// State changes, snapshots and errors are published on Events for front ends.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ddarchive/pkg/logging"
	"github.com/AleutianAI/ddarchive/services/process"
	"github.com/AleutianAI/ddarchive/services/snapshot"
)

// ErrGameRunning is returned by TriggerManualClosed while the game runs.
var ErrGameRunning = errors.New("game is running; closed-game save is disabled")

const (
	minWait          = 50 * time.Millisecond
	minInRaidRead    = time.Second
	hotkeyReadyWait  = 2 * time.Second
	defaultEventSize = 256
)

// SaveReader is the part of the decoder the engine uses.
type SaveReader interface {
	EnsureReady(ctx context.Context) error
	ReadInRaid(ctx context.Context, profileDir string) (*bool, error)
	ReadSteamCloudEnabled(ctx context.Context, remoteRoot string) (*bool, error)
}

// Options configures an Engine.
type Options struct {
	// StatePollInterval is the loop period out of raid.
	StatePollInterval time.Duration

	// InRaidPollInterval is the loop period, and the in-raid re-read
	// interval, while in raid.
	InRaidPollInterval time.Duration

	// RuntimeSnapshotInterval spaces poll snapshots.
	RuntimeSnapshotInterval time.Duration

	// EventBuffer sizes the Events channel. Default: 256.
	EventBuffer int

	// WatchChanges wakes the loop when save files change.
	WatchChanges bool
}

// Engine runs the monitor loop.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The loop runs on its own
// goroutine; triggers called from a front end go through the same
// snapshot.Manager, which serialises filesystem work.
type Engine struct {
	opts     Options
	reader   SaveReader
	snaps    *snapshot.Manager
	detector process.Detector
	hotkey   Hotkey
	metrics  *Metrics
	logger   *logging.Logger
	now      func() time.Time

	events chan Event
	wake   chan struct{}

	f5Requested atomic.Bool
	changed     atomic.Bool

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	watcher *Watcher

	stateMu        sync.Mutex
	state          State
	lastInRaid     *bool
	lastInRaidRead time.Time
	lastPoll       time.Time
}

// NewEngine wires an Engine. hotkey and metrics may be nil.
func NewEngine(opts Options, reader SaveReader, snaps *snapshot.Manager, detector process.Detector, hotkey Hotkey, metrics *Metrics, logger *logging.Logger) *Engine {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventSize
	}
	if opts.StatePollInterval <= 0 {
		opts.StatePollInterval = time.Second
	}
	if opts.InRaidPollInterval <= 0 {
		opts.InRaidPollInterval = 10 * time.Second
	}
	if opts.RuntimeSnapshotInterval <= 0 {
		opts.RuntimeSnapshotInterval = 5 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{
		opts:     opts,
		reader:   reader,
		snaps:    snaps,
		detector: detector,
		hotkey:   hotkey,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		events:   make(chan Event, opts.EventBuffer),
		wake:     make(chan struct{}, 1),
	}
}

// Events delivers engine events. Events are dropped when the buffer is full.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state.Running
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start launches the loop and, when withHotkey is set, the hotkey listener.
//
// # Description
//
// Fails when the decoder is not ready. Clears the temp poll bucket (and the
// legacy poll bucket) so a stale poll snapshot can never become an anchor.
// Calling Start while running is a no-op.
//
// # Inputs
//
//   - ctx: parent context; cancelling it stops the loop like Stop
//   - withHotkey: register the global hotkey
func (e *Engine) Start(ctx context.Context, withHotkey bool) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.cancel != nil {
		return nil
	}
	if err := e.reader.EnsureReady(ctx); err != nil {
		return err
	}
	if err := e.snaps.ClearBucket(snapshot.BucketRuntimePollTemp); err != nil {
		e.logger.Warn("clear temp bucket failed", "error", err)
	}
	if err := e.snaps.ClearLegacyPoll(); err != nil {
		e.logger.Warn("clear legacy poll bucket failed", "error", err)
	}

	e.resetLoopState()
	runCtx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(runCtx)
	e.cancel = cancel
	e.group = group

	e.stateMu.Lock()
	e.state.Running = true
	e.stateMu.Unlock()
	e.logger.Info("monitor started")
	e.emit(Event{Type: EventInfo, Message: "monitor started"})

	if withHotkey && e.hotkey != nil {
		ready := make(chan bool, 1)
		group.Go(func() error {
			return e.hotkey.Listen(gctx, ready, e.RequestF5)
		})
		registered := false
		select {
		case registered = <-ready:
		case <-time.After(hotkeyReadyWait):
		}
		e.emit(Event{Type: EventHotkey, Registered: registered})
	}

	if e.opts.WatchChanges {
		w, err := NewWatcher(e.opts.StatePollInterval, e.onSaveChanged, e.logger)
		if err != nil {
			e.logger.Warn("save watcher unavailable", "error", err)
		} else {
			if err := w.Watch(e.snaps.ProfileDir()); err != nil {
				e.logger.Warn("watch profile failed", "dir", e.snaps.ProfileDir(), "error", err)
			}
			e.watcher = w
			group.Go(func() error { return w.Run(gctx) })
		}
	}

	group.Go(func() error { return e.loop(gctx) })
	go e.reap(group, cancel)
	return nil
}

// reap resets the lifecycle once group exits on its own, which happens when
// the parent context passed to Start is cancelled. After Stop it does nothing.
func (e *Engine) reap(group *errgroup.Group, cancel context.CancelFunc) {
	err := group.Wait()

	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.group != group {
		return
	}
	cancel()
	e.cancel = nil
	e.group = nil
	e.watcher = nil
	if err != nil {
		e.logger.Warn("monitor exited", "error", err)
	}
	e.markStopped()
}

// Stop cancels the loop and waits for every goroutine to exit.
func (e *Engine) Stop() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.cancel == nil {
		return nil
	}
	e.cancel()
	err := e.group.Wait()
	e.cancel = nil
	e.group = nil
	e.watcher = nil
	e.markStopped()
	return err
}

// markStopped must be called with lifeMu held.
func (e *Engine) markStopped() {
	e.stateMu.Lock()
	e.state.Running = false
	e.stateMu.Unlock()
	e.logger.Info("monitor stopped")
	e.emit(Event{Type: EventInfo, Message: "monitor stopped"})
}

// Wait blocks until the loop exits (after Stop or parent cancellation).
func (e *Engine) Wait() error {
	e.lifeMu.Lock()
	group := e.group
	e.lifeMu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// =============================================================================
// Loop
// =============================================================================

func (e *Engine) loop(ctx context.Context) error {
	e.refreshCloudFlag(ctx)

	for {
		start := e.now()
		running, inraid := e.tick(ctx, start)

		wait := e.opts.StatePollInterval
		if running && inraid != nil && *inraid && e.opts.InRaidPollInterval > wait {
			wait = e.opts.InRaidPollInterval
		}
		wait -= e.now().Sub(start)
		if wait < minWait {
			wait = minWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// tick runs one iteration and returns the observed game and raid state.
func (e *Engine) tick(ctx context.Context, start time.Time) (bool, *bool) {
	running := e.gameRunning(ctx)

	e.stateMu.Lock()
	last := e.lastInRaid
	shouldRead := e.shouldReadInRaid(start, running)
	e.stateMu.Unlock()

	inraid := last
	if shouldRead {
		e.changed.Store(false)
		v, err := e.reader.ReadInRaid(ctx, e.snaps.ProfileDir())
		e.stateMu.Lock()
		e.lastInRaidRead = start
		e.stateMu.Unlock()
		if err != nil {
			e.setError(fmt.Sprintf("inraid read failed: %v", err))
		} else {
			inraid = v
		}
	} else if !running {
		inraid = nil
	}

	e.stateMu.Lock()
	e.state.GameRunning = running
	e.state.InRaid = inraid
	cloud := e.state.CloudEnabled
	e.stateMu.Unlock()
	e.metrics.setState(running, inraid)
	e.emit(Event{Type: EventState, GameRunning: running, InRaid: inraid, CloudEnabled: cloud})

	if e.f5Requested.Swap(false) {
		if _, err := e.TriggerF5(ctx); err != nil {
			e.setError(fmt.Sprintf("F5 snapshot failed: %v", err))
		}
	}

	if last != nil && inraid != nil && !*last && *inraid {
		anchor, err := e.snaps.PromoteLatestPoll(ctx, e.now())
		if err != nil {
			e.setError(fmt.Sprintf("anchor update failed: %v", err))
		} else if anchor != nil {
			e.metrics.snapshotCreated(string(anchor.Bucket))
			e.emit(Event{Type: EventAnchorSet, Snapshot: anchor})
		}
	}

	enteredRaid := inraid != nil && *inraid && (last == nil || !*last)
	if enteredRaid || !running {
		if err := e.snaps.ClearBucket(snapshot.BucketRuntimePollTemp); err != nil {
			e.logger.Warn("clear temp bucket failed", "error", err)
		}
	}

	e.stateMu.Lock()
	if inraid != nil {
		e.lastInRaid = inraid
	}
	pollDue := start.Sub(e.lastPoll) >= e.opts.RuntimeSnapshotInterval
	e.stateMu.Unlock()

	if running && inraid != nil && !*inraid && pollDue {
		snap, err := e.snaps.Capture(ctx, snapshot.BucketRuntimePollTemp, snapshot.ReasonPoll, inraid, true)
		if err != nil {
			e.metrics.captureFailed(string(snapshot.BucketRuntimePollTemp))
			e.setError(fmt.Sprintf("polling snapshot failed: %v", err))
		} else if snap != nil {
			e.metrics.snapshotCreated(string(snap.Bucket))
			e.emit(Event{Type: EventInfo, Message: "runtime poll snapshot created"})
		}
		e.stateMu.Lock()
		e.lastPoll = e.now()
		e.stateMu.Unlock()
	}

	return running, inraid
}

// shouldReadInRaid must be called with stateMu held.
func (e *Engine) shouldReadInRaid(now time.Time, running bool) bool {
	if !running {
		return false
	}
	if e.f5Requested.Load() || e.changed.Load() {
		return true
	}
	if e.lastInRaid != nil && *e.lastInRaid {
		interval := e.opts.InRaidPollInterval
		if interval < minInRaidRead {
			interval = minInRaidRead
		}
		return now.Sub(e.lastInRaidRead) >= interval
	}
	return true
}

func (e *Engine) gameRunning(ctx context.Context) bool {
	running, err := e.detector.IsRunning(ctx)
	if err != nil {
		e.logger.Warn("process check failed, assuming game is not running", "error", err)
		return false
	}
	return running
}

func (e *Engine) refreshCloudFlag(ctx context.Context) {
	root := e.snaps.SaveRoot()
	var cloud *bool
	if root != "" {
		v, err := e.reader.ReadSteamCloudEnabled(ctx, root)
		if err != nil {
			e.setError(fmt.Sprintf("steam cloud status read failed: %v", err))
		} else {
			cloud = v
		}
	}
	e.stateMu.Lock()
	e.state.CloudEnabled = cloud
	e.stateMu.Unlock()
}

func (e *Engine) resetLoopState() {
	e.f5Requested.Store(false)
	e.changed.Store(false)
	e.stateMu.Lock()
	e.lastInRaid = nil
	e.lastInRaidRead = time.Time{}
	e.lastPoll = time.Time{}
	e.state.GameRunning = false
	e.state.InRaid = nil
	e.state.LastError = ""
	e.stateMu.Unlock()
}

func (e *Engine) onSaveChanged() {
	e.changed.Store(true)
	e.nudge()
}

func (e *Engine) nudge() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// =============================================================================
// Triggers
// =============================================================================

// RequestF5 asks the loop to take a runtime snapshot on its next tick.
func (e *Engine) RequestF5() {
	e.f5Requested.Store(true)
	e.emit(Event{Type: EventInfo, Message: "F5 request received"})
	e.nudge()
}

// TriggerManualClosed captures a closed_manual snapshot. The game must be closed.
func (e *Engine) TriggerManualClosed(ctx context.Context) (*snapshot.Info, error) {
	if e.gameRunning(ctx) {
		return nil, ErrGameRunning
	}
	inraid, _ := e.reader.ReadInRaid(ctx, e.snaps.ProfileDir())
	snap, err := e.snaps.Capture(ctx, snapshot.BucketClosedManual, snapshot.ReasonManualClick, inraid, false)
	if err != nil {
		e.metrics.captureFailed(string(snapshot.BucketClosedManual))
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("manual snapshot skipped unexpectedly")
	}
	e.metrics.snapshotCreated(string(snap.Bucket))
	e.emit(Event{Type: EventSnapshotCreated, Snapshot: snap})
	return snap, nil
}

// TriggerF5 captures a runtime_f5 snapshot. It returns (nil, nil) with an
// info event when the game is not running.
func (e *Engine) TriggerF5(ctx context.Context) (*snapshot.Info, error) {
	if !e.gameRunning(ctx) {
		e.emit(Event{Type: EventInfo, Message: "game is not running, F5 snapshot ignored"})
		return nil, nil
	}
	inraid, _ := e.reader.ReadInRaid(ctx, e.snaps.ProfileDir())
	snap, err := e.snaps.Capture(ctx, snapshot.BucketRuntimeF5, snapshot.ReasonHotkeyF5, inraid, false)
	if err != nil {
		e.metrics.captureFailed(string(snapshot.BucketRuntimeF5))
		return nil, err
	}
	if snap != nil {
		e.metrics.snapshotCreated(string(snap.Bucket))
		e.emit(Event{Type: EventSnapshotCreated, Snapshot: snap})
	}
	return snap, nil
}

// Restore restores target and publishes restore_done with the pre-restore backup.
func (e *Engine) Restore(ctx context.Context, target snapshot.Info) (*snapshot.Info, error) {
	backup, err := e.snaps.Restore(ctx, target)
	e.metrics.restored(err == nil)
	if err != nil {
		return nil, err
	}
	e.metrics.snapshotCreated(string(backup.Bucket))
	t := target
	e.emit(Event{Type: EventRestoreDone, Snapshot: &t, PreBackup: backup})
	return backup, nil
}

// ProfileChanged resets the loop after the manager switched profiles.
func (e *Engine) ProfileChanged() {
	e.resetLoopState()
	e.retargetWatcher()
	e.emit(Event{Type: EventInfo, Message: fmt.Sprintf("switched to profile_%d", e.snaps.Profile())})
	e.emitResetState()
}

// SaveRootChanged resets the loop after the manager switched save roots.
func (e *Engine) SaveRootChanged(ctx context.Context) {
	e.resetLoopState()
	e.retargetWatcher()
	e.refreshCloudFlag(ctx)
	e.emit(Event{Type: EventInfo, Message: fmt.Sprintf("switched save root: %s", e.snaps.SaveRoot())})
	e.emitResetState()
}

func (e *Engine) emitResetState() {
	e.stateMu.Lock()
	cloud := e.state.CloudEnabled
	e.stateMu.Unlock()
	e.emit(Event{Type: EventState, GameRunning: false, InRaid: nil, CloudEnabled: cloud})
}

func (e *Engine) retargetWatcher() {
	e.lifeMu.Lock()
	w := e.watcher
	e.lifeMu.Unlock()
	if w == nil {
		return
	}
	if err := w.Watch(e.snaps.ProfileDir()); err != nil {
		e.logger.Warn("watch profile failed", "dir", e.snaps.ProfileDir(), "error", err)
	}
}

// =============================================================================
// Events
// =============================================================================

func (e *Engine) setError(msg string) {
	e.stateMu.Lock()
	e.state.LastError = msg
	e.stateMu.Unlock()
	e.logger.Error(msg)
	e.emit(Event{Type: EventError, Message: msg})
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	select {
	case e.events <- ev:
	default:
		e.metrics.eventsDropped.Inc()
	}
}
