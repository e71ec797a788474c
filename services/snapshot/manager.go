// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot stores verified copies of a game profile directory and
// restores them.
//
// Snapshots live under <root>/<bucket>/profile_<N>/<snapshot_id>/ and carry a
// meta.json describing how and when they were taken. A capture is only
// published (renamed out of its staging directory) after the copy has been
// verified against the source and decoded successfully.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/ddarchive/pkg/logging"
	"github.com/AleutianAI/ddarchive/pkg/validation"
	"github.com/AleutianAI/ddarchive/services/journal"
	"github.com/AleutianAI/ddarchive/services/process"
)

// Validator decodes the in-raid flag from a profile directory. A copy whose
// flag cannot be read as a boolean is considered corrupt.
type Validator interface {
	ReadInRaid(ctx context.Context, profileDir string) (*bool, error)
}

// Recorder receives a journal entry for every mutating operation.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Options configures a Manager.
type Options struct {
	// SnapshotsRoot is the directory holding every bucket.
	SnapshotsRoot string

	// SaveRoot is the Steam "remote" directory holding profile_N folders.
	SaveRoot string

	// Profile selects profile_<Profile>.
	Profile int

	// RetentionPerBucket caps the snapshots kept per bucket. The temp bucket keeps 1.
	RetentionPerBucket int

	// IntegrityRetry is the number of capture attempts.
	IntegrityRetry int

	// QuietWindow is how long the profile must stay unchanged before copying.
	// Zero disables the check.
	QuietWindow time.Duration

	// RetryDelay separates failed capture attempts. Default: 200ms.
	RetryDelay time.Duration
}

// Manager captures, lists, prunes, promotes and restores snapshots.
//
// # Thread Safety
//
// Every public method holds the same mutex, so filesystem mutations never
// interleave. The monitor loop and the front end share one Manager.
type Manager struct {
	opts      Options
	validator Validator
	detector  process.Detector
	logger    *logging.Logger
	recorder  Recorder
	now       func() time.Time

	mu sync.Mutex
}

// NewManager creates the snapshots root and returns a Manager.
//
// # Inputs
//
//   - opts: locations and limits
//   - validator: decodes copies to prove they are readable
//   - detector: reports whether the game runs; Restore refuses while it does
//   - logger: action logger; nil discards
//
// # Outputs
//
//   - *Manager: ready manager
//   - error: when the snapshots root cannot be created
func NewManager(opts Options, validator Validator, detector process.Detector, logger *logging.Logger) (*Manager, error) {
	if opts.SnapshotsRoot == "" {
		return nil, errors.New("snapshots root is required")
	}
	if opts.RetentionPerBucket < 1 {
		opts.RetentionPerBucket = 1
	}
	if opts.IntegrityRetry < 1 {
		opts.IntegrityRetry = 1
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if err := os.MkdirAll(opts.SnapshotsRoot, 0755); err != nil {
		return nil, fmt.Errorf("create snapshots root: %w", err)
	}
	return &Manager{
		opts:      opts,
		validator: validator,
		detector:  detector,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// SetRecorder attaches a journal. Nil detaches it.
func (m *Manager) SetRecorder(r Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = r
}

// SetProfile re-targets subsequent operations at profile_<n>.
func (m *Manager) SetProfile(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Profile = n
}

// Profile returns the current profile number.
func (m *Manager) Profile() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Profile
}

// SetSaveRoot re-targets subsequent operations at another save root.
func (m *Manager) SetSaveRoot(root string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.SaveRoot = root
}

// SaveRoot returns the current save root.
func (m *Manager) SaveRoot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.SaveRoot
}

// ProfileDir returns <save_root>/profile_<N>.
func (m *Manager) ProfileDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileDir()
}

// SnapshotsRoot returns the configured root.
func (m *Manager) SnapshotsRoot() string {
	return m.opts.SnapshotsRoot
}

func (m *Manager) profileDir() string {
	return filepath.Join(m.opts.SaveRoot, fmt.Sprintf("profile_%d", m.opts.Profile))
}

func (m *Manager) bucketDir(b Bucket) string {
	return filepath.Join(m.opts.SnapshotsRoot, string(b), fmt.Sprintf("profile_%d", m.opts.Profile))
}

func (m *Manager) retention(b Bucket) int {
	if b == BucketRuntimePollTemp {
		return 1
	}
	return m.opts.RetentionPerBucket
}

// =============================================================================
// Capture
// =============================================================================

// Capture copies the current profile into bucket.
//
// # Description
//
// Each attempt waits for a quiet window, hashes the source, copies it into a
// .staging_<id> directory, re-hashes the source to catch concurrent writes,
// verifies the copy, decodes its in-raid flag, writes meta.json and renames
// the staging directory into place. Failed attempts are logged, cleaned up and
// retried up to IntegrityRetry times.
//
// With dedupe set, the capture is skipped (nil, nil) when the source digest
// equals the newest snapshot's digest in the bucket.
//
// # Inputs
//
//   - ctx: cancels the quiet window, retries and decoding
//   - bucket: destination bucket
//   - reason: recorded in meta.json and the snapshot id
//   - inraid: in-raid state observed by the caller, stored as-is
//   - dedupe: skip identical captures
//
// # Outputs
//
//   - *Info: the published snapshot, or nil when deduplicated
//   - error: ErrProfileNotFound, ErrUnknownBucket, or
//     "capture failed after N attempts: <last error>"
func (m *Manager) Capture(ctx context.Context, bucket Bucket, reason Reason, inraid *bool, dedupe bool) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture(ctx, bucket, reason, inraid, dedupe)
}

func (m *Manager) capture(ctx context.Context, bucket Bucket, reason Reason, inraid *bool, dedupe bool) (*Info, error) {
	if !bucket.Valid() {
		return nil, unknownBucket(bucket)
	}
	src := m.profileDir()
	if !isDir(src) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, src)
	}
	bucketDir := m.bucketDir(bucket)
	if err := os.MkdirAll(bucketDir, 0755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}

	retries := m.opts.IntegrityRetry
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		info, skipped, err := m.captureAttempt(ctx, src, bucketDir, bucket, reason, inraid, dedupe)
		if err == nil {
			if skipped {
				return nil, nil
			}
			m.logger.Info("snapshot created",
				"bucket", string(bucket),
				"reason", string(reason),
				"snapshot_id", info.SnapshotID,
				"path", info.Path,
			)
			m.record(ctx, journal.Entry{
				Action:     journal.ActionCapture,
				Bucket:     string(bucket),
				SnapshotID: info.SnapshotID,
				Reason:     string(reason),
				Profile:    info.Profile,
			})
			if err := m.applyRetention(bucket); err != nil {
				m.logger.Warn("retention failed", "bucket", string(bucket), "error", err)
			}
			return info, nil
		}

		lastErr = err
		m.logger.Error("capture failed",
			"bucket", string(bucket),
			"reason", string(reason),
			"attempt", fmt.Sprintf("%d/%d", attempt, retries),
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
		if attempt < retries {
			if err := sleepCtx(ctx, m.opts.RetryDelay); err != nil {
				break
			}
		}
	}

	m.record(ctx, journal.Entry{
		Action:  journal.ActionCapture,
		Bucket:  string(bucket),
		Reason:  string(reason),
		Profile: m.opts.Profile,
		Error:   lastErr.Error(),
	})
	return nil, fmt.Errorf("capture failed after %d attempts: %w", retries, lastErr)
}

func (m *Manager) captureAttempt(ctx context.Context, src, bucketDir string, bucket Bucket, reason Reason, inraid *bool, dedupe bool) (*Info, bool, error) {
	id := NewID(m.now(), reason)
	staging := filepath.Join(bucketDir, stagingPrefix+id)
	final := filepath.Join(bucketDir, id)

	_ = os.RemoveAll(staging)
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := m.waitForQuiet(ctx, src); err != nil {
		return nil, false, err
	}

	before, err := BuildManifest(src, true)
	if err != nil {
		return nil, false, err
	}
	sourceHash := before.Digest()
	if dedupe && sourceHash == m.latestSourceHash(bucket) {
		return nil, true, nil
	}

	if err := copyTree(src, staging); err != nil {
		return nil, false, err
	}

	after, err := BuildManifest(src, true)
	if err != nil {
		return nil, false, err
	}
	if !before.Equal(after) {
		return nil, false, fmt.Errorf("%w while copying", ErrSourceChanged)
	}

	staged, err := BuildManifest(staging, true)
	if err != nil {
		return nil, false, err
	}
	if !before.EqualForCopy(staged) {
		return nil, false, ErrCopyMismatch
	}

	if err := m.validate(ctx, staging); err != nil {
		return nil, false, err
	}

	info := &Info{
		SnapshotID:      id,
		Bucket:          bucket,
		Reason:          reason,
		CreatedAt:       m.now().UTC(),
		Profile:         m.opts.Profile,
		InRaidAtCapture: inraid,
		IntegrityOK:     true,
		SourceHash:      sourceHash,
		SizeBytes:       before.TotalSize(),
		Path:            final,
	}
	if err := writeMeta(staging, *info); err != nil {
		return nil, false, err
	}
	if _, err := os.Stat(final); err == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrCollision, final)
	}
	if err := os.Rename(staging, final); err != nil {
		return nil, false, fmt.Errorf("publish snapshot: %w", err)
	}
	published = true
	return info, false, nil
}

// waitForQuiet fails when the hashless manifest changes across the window.
func (m *Manager) waitForQuiet(ctx context.Context, src string) error {
	if m.opts.QuietWindow <= 0 {
		return nil
	}
	first, err := BuildManifest(src, false)
	if err != nil {
		return err
	}
	if err := sleepCtx(ctx, m.opts.QuietWindow); err != nil {
		return err
	}
	second, err := BuildManifest(src, false)
	if err != nil {
		return err
	}
	if !first.Equal(second) {
		return fmt.Errorf("%w during quiet window", ErrSourceChanged)
	}
	return nil
}

func (m *Manager) validate(ctx context.Context, dir string) error {
	if m.validator == nil {
		return nil
	}
	v, err := m.validator.ReadInRaid(ctx, dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if v == nil {
		return ErrValidation
	}
	return nil
}

func (m *Manager) latestSourceHash(bucket Bucket) string {
	snaps := m.list(bucket, true)
	if len(snaps) == 0 {
		return ""
	}
	return snaps[0].SourceHash
}

// =============================================================================
// Listing and retention
// =============================================================================

// List returns snapshots of the current profile, newest first.
//
// An empty bucket lists every bucket. Directories without a readable
// meta.json are reported as "unknown" entries with IntegrityOK false when
// includeInvalid is set and skipped otherwise.
func (m *Manager) List(bucket Bucket, includeInvalid bool) ([]Info, error) {
	if bucket != "" && !bucket.Valid() {
		return nil, unknownBucket(bucket)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(bucket, includeInvalid), nil
}

func (m *Manager) list(bucket Bucket, includeInvalid bool) []Info {
	targets := Buckets
	if bucket != "" {
		targets = []Bucket{bucket}
	}

	var result []Info
	for _, b := range targets {
		dir := m.bucketDir(b)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || isStaging(e.Name()) {
				continue
			}
			child := filepath.Join(dir, e.Name())
			if info := readMeta(child); info != nil {
				if includeInvalid || info.IntegrityOK {
					result = append(result, *info)
				}
				continue
			}
			if !includeInvalid {
				continue
			}
			var created time.Time
			if st, err := e.Info(); err == nil {
				created = st.ModTime().UTC()
			}
			result = append(result, Info{
				SnapshotID: e.Name(),
				Bucket:     b,
				Reason:     ReasonUnknown,
				CreatedAt:  created,
				Profile:    m.opts.Profile,
				SizeBytes:  dirSize(child),
				Path:       child,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].SnapshotID > result[j].SnapshotID
	})
	return result
}

// Find returns the snapshot with the given id from any bucket.
func (m *Manager) Find(id string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.list("", true) {
		if info.SnapshotID == id {
			found := info
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
}

func (m *Manager) applyRetention(bucket Bucket) error {
	snaps := m.list(bucket, true)
	keep := m.retention(bucket)
	var errs []error
	for i := keep; i < len(snaps); i++ {
		if err := os.RemoveAll(snaps[i].Path); err != nil {
			errs = append(errs, err)
			continue
		}
		m.logger.Debug("snapshot pruned", "bucket", string(bucket), "snapshot_id", snaps[i].SnapshotID)
	}
	return errors.Join(errs...)
}

// ClearBucket deletes every snapshot of the current profile in bucket. A
// clear that removed anything is recorded in the journal.
func (m *Manager) ClearBucket(bucket Bucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !bucket.Valid() {
		return unknownBucket(bucket)
	}
	n, err := m.clearDir(bucket)
	m.recordClear(bucket, n, err)
	return err
}

// ClearLegacyPoll removes the poll bucket used by older releases.
func (m *Manager) ClearLegacyPoll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.clearDir(legacyPollBucket)
	m.recordClear(legacyPollBucket, n, err)
	return err
}

func (m *Manager) clearBucket(bucket Bucket) error {
	if !bucket.Valid() {
		return unknownBucket(bucket)
	}
	_, err := m.clearDir(bucket)
	return err
}

// clearDir returns the number of snapshot directories it removed.
func (m *Manager) clearDir(bucket Bucket) (int, error) {
	entries, err := os.ReadDir(m.bucketDir(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read bucket %s: %w", bucket, err)
	}
	var errs []error
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.bucketDir(bucket), e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (m *Manager) recordClear(bucket Bucket, removed int, err error) {
	if removed == 0 && err == nil {
		return
	}
	m.logger.Info("bucket cleared", "bucket", string(bucket), "removed", removed)
	e := journal.Entry{
		Action:  journal.ActionClear,
		Bucket:  string(bucket),
		Reason:  fmt.Sprintf("removed %d", removed),
		Profile: m.opts.Profile,
	}
	if err != nil {
		e.Error = err.Error()
	}
	m.record(context.Background(), e)
}

// =============================================================================
// Promotion
// =============================================================================

// PromoteLatestPoll turns the newest poll snapshot taken at or before
// atOrBefore into the pre-raid anchor.
//
// # Description
//
// Clears the anchor flag on existing pre-raid snapshots, copies the poll
// snapshot into pre_raid_auto under a new id with reason pre_raid_auto,
// applies retention and empties the temp bucket.
//
// # Outputs
//
//   - *Info: the new anchor, or nil when no poll snapshot qualifies
//   - error: copy or metadata failure
func (m *Manager) PromoteLatestPoll(ctx context.Context, atOrBefore time.Time) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target *Info
	for _, snap := range m.list(BucketRuntimePollTemp, false) {
		if snap.CreatedAt.After(atOrBefore) {
			continue
		}
		if target == nil || snap.CreatedAt.After(target.CreatedAt) {
			s := snap
			target = &s
		}
	}
	if target == nil {
		return nil, nil
	}

	for _, snap := range m.list(BucketPreRaidAuto, false) {
		if !snap.PreRaidAnchor {
			continue
		}
		snap.PreRaidAnchor = false
		if err := writeMeta(snap.Path, snap); err != nil {
			m.logger.Warn("clear anchor failed", "snapshot_id", snap.SnapshotID, "error", err)
		}
	}

	dstBucket := m.bucketDir(BucketPreRaidAuto)
	if err := os.MkdirAll(dstBucket, 0755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	promoted := *target
	promoted.SnapshotID = NewID(m.now(), ReasonPreRaidAuto)
	promoted.Bucket = BucketPreRaidAuto
	promoted.Reason = ReasonPreRaidAuto
	promoted.PreRaidAnchor = true
	promoted.Path = filepath.Join(dstBucket, promoted.SnapshotID)

	if err := copyTree(target.Path, promoted.Path); err != nil {
		_ = os.RemoveAll(promoted.Path)
		return nil, fmt.Errorf("copy poll snapshot: %w", err)
	}
	if err := writeMeta(promoted.Path, promoted); err != nil {
		_ = os.RemoveAll(promoted.Path)
		return nil, err
	}

	if err := m.applyRetention(BucketPreRaidAuto); err != nil {
		m.logger.Warn("retention failed", "bucket", string(BucketPreRaidAuto), "error", err)
	}
	if err := m.clearBucket(BucketRuntimePollTemp); err != nil {
		m.logger.Warn("clear temp bucket failed", "error", err)
	}

	m.logger.Info("pre-raid snapshot promoted", "snapshot_id", promoted.SnapshotID, "from", target.SnapshotID)
	m.record(ctx, journal.Entry{
		Action:     journal.ActionPromote,
		Bucket:     string(BucketPreRaidAuto),
		SnapshotID: promoted.SnapshotID,
		Reason:     string(ReasonPreRaidAuto),
		Profile:    promoted.Profile,
	})
	return &promoted, nil
}

// =============================================================================
// Restore
// =============================================================================

// Restore replaces the live profile with the contents of target.
//
// # Description
//
// Refuses while the game runs. Captures a closed_manual/pre_restore_backup
// snapshot first, then copies target (minus meta.json) into profile_N.__new,
// swaps it with the live profile (kept as profile_N.__old) and decodes the
// result. On success the old profile is deleted; on failure the swap is
// rolled back. The .__new directory is always removed.
//
// # Outputs
//
//   - *Info: the pre-restore backup
//   - error: ErrGameRunning, ErrSnapshotNotFound, capture or validation failure
func (m *Manager) Restore(ctx context.Context, target Info) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detector != nil {
		running, err := m.detector.IsRunning(ctx)
		if err != nil {
			m.logger.Warn("process check failed, assuming game is closed", "error", err)
		}
		if running {
			return nil, ErrGameRunning
		}
	}

	if !isDir(target.Path) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, target.Path)
	}

	backup, err := m.capture(ctx, BucketClosedManual, ReasonPreRestoreBackup, nil, false)
	if err != nil {
		return nil, fmt.Errorf("pre-restore backup: %w", err)
	}
	if backup == nil {
		return nil, errors.New("failed to create pre-restore backup")
	}

	profile := m.profileDir()
	newDir := profile + ".__new"
	oldDir := profile + ".__old"
	_ = os.RemoveAll(newDir)
	_ = os.RemoveAll(oldDir)
	defer os.RemoveAll(newDir)

	if err := m.swapIn(ctx, target.Path, profile, newDir, oldDir); err != nil {
		m.logger.Error("restore failed, rolling back", "snapshot_id", target.SnapshotID, "error", err)
		if rbErr := rollback(profile, oldDir); rbErr != nil {
			m.logger.Error("rollback failed", "error", rbErr)
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		m.record(ctx, journal.Entry{
			Action:     journal.ActionRollback,
			Bucket:     string(target.Bucket),
			SnapshotID: target.SnapshotID,
			Profile:    m.opts.Profile,
			Error:      err.Error(),
		})
		return nil, err
	}

	_ = os.RemoveAll(oldDir)
	m.logger.Info("restore complete",
		"bucket", string(target.Bucket),
		"snapshot_id", target.SnapshotID,
		"pre_backup", backup.SnapshotID,
	)
	m.record(ctx, journal.Entry{
		Action:     journal.ActionRestore,
		Bucket:     string(target.Bucket),
		SnapshotID: target.SnapshotID,
		Reason:     string(target.Reason),
		Profile:    m.opts.Profile,
	})
	return backup, nil
}

// Adopt moves an extracted snapshot directory into its bucket.
//
// # Description
//
// src must hold a meta.json naming a displayed bucket. The directory is
// decoded like a fresh capture, renamed to <bucket>/profile_N/<snapshot_id>
// for the active profile and its meta.json rewritten with the new path.
// Retention is applied afterwards.
//
// # Outputs
//
//   - *Info: the adopted snapshot
//   - error: ErrValidation, ErrUnknownBucket, ErrCollision, or an IO error
func (m *Manager) Adopt(ctx context.Context, src string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := readMeta(src)
	if info == nil {
		return nil, fmt.Errorf("%w: %s has no readable %s", ErrValidation, src, MetaFile)
	}
	if err := validation.ValidateSnapshotID(info.SnapshotID); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, MetaFile, err)
	}
	if info.SnapshotID != filepath.Base(src) {
		return nil, fmt.Errorf("%w: %s names %q but directory is %q",
			ErrValidation, MetaFile, info.SnapshotID, filepath.Base(src))
	}
	if !info.Bucket.Valid() || info.Bucket == BucketRuntimePollTemp {
		return nil, unknownBucket(info.Bucket)
	}
	if err := m.validate(ctx, src); err != nil {
		return nil, err
	}

	bucketDir := m.bucketDir(info.Bucket)
	dst := filepath.Join(bucketDir, info.SnapshotID)
	if _, err := os.Stat(dst); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollision, info.SnapshotID)
	}
	if err := os.MkdirAll(bucketDir, 0755); err != nil {
		return nil, err
	}
	if err := os.Rename(src, dst); err != nil {
		if err := copyTree(src, dst); err != nil {
			_ = os.RemoveAll(dst)
			return nil, err
		}
		_ = os.RemoveAll(src)
	}

	info.Path = dst
	info.Profile = m.opts.Profile
	info.IntegrityOK = true
	if err := writeMeta(dst, *info); err != nil {
		return nil, err
	}
	if err := m.applyRetention(info.Bucket); err != nil {
		m.logger.Warn("retention failed", "bucket", string(info.Bucket), "error", err)
	}

	m.logger.Info("snapshot imported", "bucket", string(info.Bucket), "snapshot_id", info.SnapshotID)
	m.record(ctx, journal.Entry{
		Action:     journal.ActionImport,
		Bucket:     string(info.Bucket),
		SnapshotID: info.SnapshotID,
		Reason:     string(info.Reason),
		Profile:    m.opts.Profile,
	})
	return info, nil
}

func (m *Manager) swapIn(ctx context.Context, src, profile, newDir, oldDir string) error {
	if err := copyTree(src, newDir, MetaFile); err != nil {
		return err
	}
	if err := os.Rename(profile, oldDir); err != nil {
		return fmt.Errorf("move live profile aside: %w", err)
	}
	if err := os.Rename(newDir, profile); err != nil {
		return fmt.Errorf("move restored profile into place: %w", err)
	}
	if err := m.validate(ctx, profile); err != nil {
		return fmt.Errorf("restore validation: %w", err)
	}
	return nil
}

func rollback(profile, oldDir string) error {
	if !isDir(oldDir) {
		return nil
	}
	if err := os.RemoveAll(profile); err != nil {
		return err
	}
	return os.Rename(oldDir, profile)
}

func (m *Manager) record(ctx context.Context, e journal.Entry) {
	if m.recorder == nil {
		return
	}
	// a cancelled caller should not lose the history entry
	if err := m.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		m.logger.Warn("journal write failed", "action", string(e.Action), "error", err)
	}
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
