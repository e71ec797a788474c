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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ddarchive/services/decoder"
	"github.com/AleutianAI/ddarchive/services/journal"
	"github.com/AleutianAI/ddarchive/services/process"
)

// =============================================================================
// Fixtures
// =============================================================================

type fixture struct {
	saveRoot string
	profile  string
	root     string
	game     *process.Static
	mgr      *Manager
	clock    *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type memRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (r *memRecorder) Record(_ context.Context, e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) actions() []journal.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []journal.Action
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newFixture(t *testing.T, validator Validator) *fixture {
	t.Helper()
	base := t.TempDir()
	saveRoot := filepath.Join(base, "remote")
	profile := filepath.Join(saveRoot, "profile_0")

	writeFile(t, filepath.Join(profile, decoder.PersistGameFile), `{"base_root":{"inraid":false}}`)
	writeFile(t, filepath.Join(profile, "persist.roster.json"), `{"heroes":["crusader","vestal"]}`)
	writeFile(t, filepath.Join(profile, "novelty_tracker", "seen.json"), `[1,2,3]`)

	if validator == nil {
		d := decoder.New(filepath.Join(base, "DDSaveEditor.jar"), "java", decoder.NewPassthroughRunner())
		d.TempDir = t.TempDir()
		validator = d
	}

	game := process.NewStatic(false)
	mgr, err := NewManager(Options{
		SnapshotsRoot:      filepath.Join(base, "snapshots"),
		SaveRoot:           saveRoot,
		Profile:            0,
		RetentionPerBucket: 3,
		IntegrityRetry:     2,
		RetryDelay:         time.Millisecond,
	}, validator, game, nil)
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	mgr.now = clock.Now

	return &fixture{saveRoot: saveRoot, profile: profile, root: mgr.SnapshotsRoot(), game: game, mgr: mgr, clock: clock}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	require.NoError(t, filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		if info.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	}))
	return files
}

type validatorFunc func(ctx context.Context, dir string) (*bool, error)

func (f validatorFunc) ReadInRaid(ctx context.Context, dir string) (*bool, error) { return f(ctx, dir) }

func boolPtr(v bool) *bool { return &v }

// =============================================================================
// Tests
// =============================================================================

func TestNewID(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 7_008_000, time.Local)
	assert.Equal(t, "20260203_040506_007008_hotkey_f5", NewID(ts, ReasonHotkeyF5))
}

func TestBucketAndReasonLabels(t *testing.T) {
	assert.True(t, BucketRuntimePollTemp.Valid())
	assert.False(t, Bucket("runtime_poll").Valid())
	assert.Equal(t, "Runtime F5 saves", BucketRuntimeF5.Label())
	assert.Equal(t, "custom", Reason("custom").Label())
	assert.NotContains(t, DisplayBuckets, BucketRuntimePollTemp)

	_, err := ParseBucket("nope")
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestCapture_PublishesVerifiedSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	rec := &memRecorder{}
	f.mgr.SetRecorder(rec)

	info, err := f.mgr.Capture(context.Background(), BucketClosedManual, ReasonManualClick, boolPtr(false), false)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, BucketClosedManual, info.Bucket)
	assert.Equal(t, ReasonManualClick, info.Reason)
	assert.True(t, info.IntegrityOK)
	assert.True(t, strings.HasSuffix(info.SnapshotID, "_manual_click"))
	assert.Equal(t, filepath.Join(f.root, "closed_manual", "profile_0", info.SnapshotID), info.Path)
	assert.NotEmpty(t, info.SourceHash)
	assert.Equal(t, boolPtr(false), info.InRaidAtCapture)

	var size int64
	for _, content := range readTree(t, f.profile) {
		size += int64(len(content))
	}
	assert.Equal(t, size, info.SizeBytes)

	copied := readTree(t, info.Path)
	assert.Contains(t, copied, MetaFile)
	delete(copied, MetaFile)
	assert.Equal(t, readTree(t, f.profile), copied)

	meta := readMeta(info.Path)
	require.NotNil(t, meta)
	assert.Equal(t, info.SnapshotID, meta.SnapshotID)
	assert.Equal(t, info.SourceHash, meta.SourceHash)

	// no staging directories left behind
	entries, err := os.ReadDir(filepath.Dir(info.Path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, isStaging(e.Name()))
	}

	assert.Equal(t, []journal.Action{journal.ActionCapture}, rec.actions())
}

func TestCapture_Dedupe(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.mgr.Capture(ctx, BucketRuntimePollTemp, ReasonPoll, boolPtr(false), true)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.mgr.Capture(ctx, BucketRuntimePollTemp, ReasonPoll, boolPtr(false), true)
	require.NoError(t, err)
	assert.Nil(t, second, "identical source should be skipped")

	writeFile(t, filepath.Join(f.profile, "persist.roster.json"), `{"heroes":["leper"]}`)
	third, err := f.mgr.Capture(ctx, BucketRuntimePollTemp, ReasonPoll, boolPtr(false), true)
	require.NoError(t, err)
	require.NotNil(t, third)

	// the temp bucket keeps one snapshot
	snaps, err := f.mgr.List(BucketRuntimePollTemp, true)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, third.SnapshotID, snaps[0].SnapshotID)
}

func TestCapture_MissingProfile(t *testing.T) {
	f := newFixture(t, nil)
	f.mgr.SetProfile(7)

	_, err := f.mgr.Capture(context.Background(), BucketClosedManual, ReasonManualClick, nil, false)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestCapture_UnknownBucket(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.mgr.Capture(context.Background(), Bucket("elsewhere"), ReasonManualClick, nil, false)
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestCapture_ValidationFailureRetriesAndCleansUp(t *testing.T) {
	var calls int
	bad := validatorFunc(func(context.Context, string) (*bool, error) {
		calls++
		return nil, nil
	})
	f := newFixture(t, bad)
	rec := &memRecorder{}
	f.mgr.SetRecorder(rec)

	_, err := f.mgr.Capture(context.Background(), BucketRuntimeF5, ReasonHotkeyF5, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture failed after 2 attempts")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 2, calls)

	entries, err := os.ReadDir(filepath.Join(f.root, "runtime_f5", "profile_0"))
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directories must be removed")

	require.Len(t, rec.entries, 1)
	assert.True(t, rec.entries[0].Failed())
}

func TestCapture_SucceedsOnRetry(t *testing.T) {
	var calls int
	flaky := validatorFunc(func(context.Context, string) (*bool, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("truncated")
		}
		return boolPtr(false), nil
	})
	f := newFixture(t, flaky)

	info, err := f.mgr.Capture(context.Background(), BucketRuntimeF5, ReasonHotkeyF5, nil, false)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 2, calls)
}

func TestCapture_QuietWindowDetectsWrites(t *testing.T) {
	f := newFixture(t, nil)
	f.mgr.opts.QuietWindow = 50 * time.Millisecond
	f.mgr.opts.IntegrityRetry = 1

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = os.WriteFile(filepath.Join(f.profile, "persist.roster.json"), []byte(fmt.Sprintf(`{"n":%d}`, i)), 0644)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	_, err := f.mgr.Capture(context.Background(), BucketClosedManual, ReasonManualClick, nil, false)
	close(stop)
	<-done

	assert.ErrorIs(t, err, ErrSourceChanged)
}

func TestCapture_CancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	f.mgr.opts.QuietWindow = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.mgr.Capture(ctx, BucketClosedManual, ReasonManualClick, nil, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestList_OrderingAndInvalidEntries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(f.profile, "counter.txt"), fmt.Sprint(i))
		info, err := f.mgr.Capture(ctx, BucketClosedManual, ReasonManualClick, nil, false)
		require.NoError(t, err)
		ids = append(ids, info.SnapshotID)
	}

	bucketDir := filepath.Join(f.root, "closed_manual", "profile_0")
	require.NoError(t, os.MkdirAll(filepath.Join(bucketDir, "broken"), 0755))
	writeFile(t, filepath.Join(bucketDir, "broken", "file.bin"), "12345")
	require.NoError(t, os.MkdirAll(filepath.Join(bucketDir, stagingPrefix+"leftover"), 0755))

	valid, err := f.mgr.List(BucketClosedManual, false)
	require.NoError(t, err)
	require.Len(t, valid, 3)
	assert.Equal(t, ids[2], valid[0].SnapshotID)
	assert.Equal(t, ids[0], valid[2].SnapshotID)

	all, err := f.mgr.List(BucketClosedManual, true)
	require.NoError(t, err)
	require.Len(t, all, 4)

	var broken *Info
	for i := range all {
		if all[i].SnapshotID == "broken" {
			broken = &all[i]
		}
	}
	require.NotNil(t, broken)
	assert.Equal(t, ReasonUnknown, broken.Reason)
	assert.False(t, broken.IntegrityOK)
	assert.Equal(t, int64(5), broken.SizeBytes)

	_, err = f.mgr.List(Bucket("bogus"), false)
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestList_AllBuckets(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.mgr.Capture(ctx, BucketClosedManual, ReasonManualClick, nil, false)
	require.NoError(t, err)
	_, err = f.mgr.Capture(ctx, BucketRuntimeF5, ReasonHotkeyF5, nil, false)
	require.NoError(t, err)

	all, err := f.mgr.List("", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, BucketRuntimeF5, all[0].Bucket)
}

func TestRetention(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var last []string
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(f.profile, "counter.txt"), fmt.Sprint(i))
		info, err := f.mgr.Capture(ctx, BucketRuntimeF5, ReasonHotkeyF5, nil, false)
		require.NoError(t, err)
		last = append(last, info.SnapshotID)
	}

	snaps, err := f.mgr.List(BucketRuntimeF5, true)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, []string{last[4], last[3], last[2]}, []string{snaps[0].SnapshotID, snaps[1].SnapshotID, snaps[2].SnapshotID})
}

func TestClearBucket(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.mgr.Capture(context.Background(), BucketRuntimeF5, ReasonHotkeyF5, nil, false)
	require.NoError(t, err)

	rec := &memRecorder{}
	f.mgr.SetRecorder(rec)

	require.NoError(t, f.mgr.ClearBucket(BucketRuntimeF5))
	snaps, err := f.mgr.List(BucketRuntimeF5, true)
	require.NoError(t, err)
	assert.Empty(t, snaps)
	require.Equal(t, []journal.Action{journal.ActionClear}, rec.actions())
	assert.Equal(t, string(BucketRuntimeF5), rec.entries[0].Bucket)
	assert.Equal(t, "removed 1", rec.entries[0].Reason)

	// clearing an empty or missing bucket is fine and leaves no history
	assert.NoError(t, f.mgr.ClearBucket(BucketPreRaidAuto))
	assert.NoError(t, f.mgr.ClearBucket(BucketRuntimeF5))
	assert.ErrorIs(t, f.mgr.ClearBucket(Bucket("x")), ErrUnknownBucket)
	assert.Len(t, rec.actions(), 1)
}

func TestClearLegacyPoll(t *testing.T) {
	f := newFixture(t, nil)
	legacy := filepath.Join(f.root, "runtime_poll", "profile_0", "old")
	writeFile(t, filepath.Join(legacy, "a"), "x")

	rec := &memRecorder{}
	f.mgr.SetRecorder(rec)

	require.NoError(t, f.mgr.ClearLegacyPoll())
	assert.NoDirExists(t, legacy)
	assert.Equal(t, []journal.Action{journal.ActionClear}, rec.actions())
}

func TestPromoteLatestPoll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	rec := &memRecorder{}
	f.mgr.SetRecorder(rec)

	none, err := f.mgr.PromoteLatestPoll(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, none)

	poll, err := f.mgr.Capture(ctx, BucketRuntimePollTemp, ReasonPoll, boolPtr(false), true)
	require.NoError(t, err)

	tooEarly, err := f.mgr.PromoteLatestPoll(ctx, poll.CreatedAt.Add(-time.Second))
	require.NoError(t, err)
	assert.Nil(t, tooEarly)

	anchor, err := f.mgr.PromoteLatestPoll(ctx, poll.CreatedAt)
	require.NoError(t, err)
	require.NotNil(t, anchor)

	assert.Equal(t, BucketPreRaidAuto, anchor.Bucket)
	assert.Equal(t, ReasonPreRaidAuto, anchor.Reason)
	assert.True(t, anchor.PreRaidAnchor)
	assert.NotEqual(t, poll.SnapshotID, anchor.SnapshotID)
	assert.Equal(t, poll.SourceHash, anchor.SourceHash)
	assert.True(t, poll.CreatedAt.Equal(anchor.CreatedAt))

	temp, err := f.mgr.List(BucketRuntimePollTemp, true)
	require.NoError(t, err)
	assert.Empty(t, temp, "temp bucket is cleared after promotion")

	// a second promotion moves the anchor
	writeFile(t, filepath.Join(f.profile, "counter.txt"), "2")
	poll2, err := f.mgr.Capture(ctx, BucketRuntimePollTemp, ReasonPoll, boolPtr(false), true)
	require.NoError(t, err)
	anchor2, err := f.mgr.PromoteLatestPoll(ctx, poll2.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, anchor2)

	pre, err := f.mgr.List(BucketPreRaidAuto, false)
	require.NoError(t, err)
	require.Len(t, pre, 2)
	anchors := 0
	for _, p := range pre {
		if p.PreRaidAnchor {
			anchors++
			assert.Equal(t, anchor2.SnapshotID, p.SnapshotID)
		}
	}
	assert.Equal(t, 1, anchors)

	assert.Contains(t, rec.actions(), journal.ActionPromote)
}

func TestRestore_RoundTripIsByteForByte(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	rec := &memRecorder{}
	f.mgr.SetRecorder(rec)

	original := readTree(t, f.profile)
	snap, err := f.mgr.Capture(ctx, BucketClosedManual, ReasonManualClick, nil, false)
	require.NoError(t, err)

	// play on: change, add and delete files
	writeFile(t, filepath.Join(f.profile, "persist.roster.json"), `{"heroes":[]}`)
	writeFile(t, filepath.Join(f.profile, "new_file.json"), `{}`)
	require.NoError(t, os.RemoveAll(filepath.Join(f.profile, "novelty_tracker")))
	changed := readTree(t, f.profile)

	backup, err := f.mgr.Restore(ctx, *snap)
	require.NoError(t, err)
	require.NotNil(t, backup)

	assert.Equal(t, original, readTree(t, f.profile))
	assert.Equal(t, ReasonPreRestoreBackup, backup.Reason)
	assert.Equal(t, BucketClosedManual, backup.Bucket)

	// the pre-restore backup holds the state that was replaced
	saved := readTree(t, backup.Path)
	delete(saved, MetaFile)
	assert.Equal(t, changed, saved)

	assert.NoDirExists(t, f.profile+".__new")
	assert.NoDirExists(t, f.profile+".__old")
	assert.Equal(t, journal.ActionRestore, rec.actions()[len(rec.actions())-1])
}

func TestRestore_PreservesModTimes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	before, err := BuildManifest(f.profile, true)
	require.NoError(t, err)
	snap, err := f.mgr.Capture(ctx, BucketClosedManual, ReasonManualClick, nil, false)
	require.NoError(t, err)

	writeFile(t, filepath.Join(f.profile, "persist.roster.json"), `{}`)
	_, err = f.mgr.Restore(ctx, *snap)
	require.NoError(t, err)

	after, err := BuildManifest(f.profile, true)
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
	assert.Equal(t, before.Digest(), after.Digest())
}

func TestRestore_RefusesWhileGameRuns(t *testing.T) {
	f := newFixture(t, nil)
	snap, err := f.mgr.Capture(context.Background(), BucketClosedManual, ReasonManualClick, nil, false)
	require.NoError(t, err)

	f.game.Set(true)
	_, err = f.mgr.Restore(context.Background(), *snap)
	assert.ErrorIs(t, err, ErrGameRunning)
}

func TestRestore_MissingSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.mgr.Restore(context.Background(), Info{Path: filepath.Join(f.root, "nope")})
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestRestore_RollsBackOnValidationFailure(t *testing.T) {
	// the restored profile is unreadable, the live one is fine
	v := validatorFunc(func(_ context.Context, dir string) (*bool, error) {
		data, err := os.ReadFile(filepath.Join(dir, decoder.PersistGameFile))
		if err != nil {
			return nil, err
		}
		if strings.Contains(string(data), "corrupt") {
			return nil, nil
		}
		return boolPtr(false), nil
	})
	f := newFixture(t, v)
	ctx := context.Background()
	rec := &memRecorder{}
	f.mgr.SetRecorder(rec)

	snap, err := f.mgr.Capture(ctx, BucketClosedManual, ReasonManualClick, nil, false)
	require.NoError(t, err)
	writeFile(t, filepath.Join(snap.Path, decoder.PersistGameFile), "corrupt")

	live := readTree(t, f.profile)
	_, err = f.mgr.Restore(ctx, *snap)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, live, readTree(t, f.profile), "live profile must be rolled back")
	assert.NoDirExists(t, f.profile+".__new")
	assert.NoDirExists(t, f.profile+".__old")
	assert.Contains(t, rec.actions(), journal.ActionRollback)
}

func TestFind(t *testing.T) {
	f := newFixture(t, nil)
	snap, err := f.mgr.Capture(context.Background(), BucketRuntimeF5, ReasonHotkeyF5, nil, false)
	require.NoError(t, err)

	found, err := f.mgr.Find(snap.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, snap.Path, found.Path)

	_, err = f.mgr.Find("missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestProfileSwitching(t *testing.T) {
	f := newFixture(t, nil)
	writeFile(t, filepath.Join(f.saveRoot, "profile_1", decoder.PersistGameFile), `{"base_root":{"inraid":true}}`)

	_, err := f.mgr.Capture(context.Background(), BucketClosedManual, ReasonManualClick, nil, false)
	require.NoError(t, err)

	f.mgr.SetProfile(1)
	assert.Equal(t, 1, f.mgr.Profile())
	assert.Equal(t, filepath.Join(f.saveRoot, "profile_1"), f.mgr.ProfileDir())

	snaps, err := f.mgr.List(BucketClosedManual, true)
	require.NoError(t, err)
	assert.Empty(t, snaps, "profiles have separate buckets")

	info, err := f.mgr.Capture(context.Background(), BucketClosedManual, ReasonManualClick, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Profile)
	assert.Contains(t, info.Path, filepath.Join("closed_manual", "profile_1"))
}

func TestAdopt(t *testing.T) {
	f := newFixture(t, nil)
	rec := &memRecorder{}
	f.mgr.SetRecorder(rec)
	ctx := context.Background()

	snap, err := f.mgr.Capture(ctx, BucketClosedManual, ReasonManualClick, nil, false)
	require.NoError(t, err)

	extracted := filepath.Join(t.TempDir(), snap.SnapshotID)
	require.NoError(t, copyTree(snap.Path, extracted))
	spare := filepath.Join(t.TempDir(), snap.SnapshotID)
	require.NoError(t, copyTree(snap.Path, spare))

	_, err = f.mgr.Adopt(ctx, spare)
	assert.ErrorIs(t, err, ErrCollision)

	require.NoError(t, f.mgr.ClearBucket(BucketClosedManual))
	adopted, err := f.mgr.Adopt(ctx, extracted)
	require.NoError(t, err)
	assert.Equal(t, snap.SnapshotID, adopted.SnapshotID)
	assert.True(t, adopted.IntegrityOK)
	assert.NoDirExists(t, extracted)

	list, err := f.mgr.List(BucketClosedManual, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, adopted.Path, list[0].Path)
	got := readTree(t, list[0].Path)
	want := readTree(t, spare)
	assert.Equal(t, want["persist.roster.json"], got["persist.roster.json"])
	assert.Equal(t, want["novelty_tracker/seen.json"], got["novelty_tracker/seen.json"])
	assert.Contains(t, rec.actions(), journal.ActionImport)
}

func TestAdopt_Rejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bare := t.TempDir()
	writeFile(t, filepath.Join(bare, decoder.PersistGameFile), `{"base_root":{"inraid":false}}`)
	_, err := f.mgr.Adopt(ctx, bare)
	assert.ErrorIs(t, err, ErrValidation)

	temp := filepath.Join(t.TempDir(), "x")
	writeFile(t, filepath.Join(temp, decoder.PersistGameFile), `{"base_root":{"inraid":false}}`)
	require.NoError(t, writeMeta(temp, Info{SnapshotID: "x", Bucket: BucketRuntimePollTemp, Path: temp}))
	_, err = f.mgr.Adopt(ctx, temp)
	assert.ErrorIs(t, err, ErrUnknownBucket)

	undecodable := filepath.Join(t.TempDir(), "y")
	require.NoError(t, os.MkdirAll(undecodable, 0755))
	require.NoError(t, writeMeta(undecodable, Info{SnapshotID: "y", Bucket: BucketClosedManual, Path: undecodable}))
	_, err = f.mgr.Adopt(ctx, undecodable)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdopt_RejectsUnsafeSnapshotID(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for name, id := range map[string]string{
		"traversal":     "../../../escaped",
		"separator":     "a/b",
		"hidden":        ".staging",
		"mismatched id": "other",
	} {
		t.Run(name, func(t *testing.T) {
			src := filepath.Join(t.TempDir(), "extracted")
			writeFile(t, filepath.Join(src, decoder.PersistGameFile), `{"base_root":{"inraid":false}}`)
			require.NoError(t, writeMeta(src, Info{SnapshotID: id, Bucket: BucketClosedManual, Path: src}))

			_, err := f.mgr.Adopt(ctx, src)
			assert.ErrorIs(t, err, ErrValidation)
			assert.DirExists(t, src, "rejected source is left in place")
		})
	}

	assert.NoDirExists(t, filepath.Join(f.root, "escaped"))
	assert.NoDirExists(t, filepath.Join(filepath.Dir(f.root), "escaped"))
	snaps, err := f.mgr.List(BucketClosedManual, true)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
