// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openInMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, action := range []Action{ActionCapture, ActionPromote, ActionRestore} {
		require.NoError(t, j.Record(ctx, Entry{
			Time:       base.Add(time.Duration(i) * time.Second),
			Action:     action,
			Bucket:     "closed_manual",
			SnapshotID: string(action),
		}))
	}

	entries, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ActionRestore, entries[0].Action)
	assert.Equal(t, ActionPromote, entries[1].Action)
	assert.Equal(t, ActionCapture, entries[2].Action)

	for _, e := range entries {
		assert.NotEqual(t, uuid.Nil, e.ID)
		assert.Equal(t, time.UTC, e.Time.Location())
	}
}

func TestRecent_Limit(t *testing.T) {
	j := openInMemory(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 10; i++ {
		require.NoError(t, j.Record(ctx, Entry{Time: base.Add(time.Duration(i) * time.Millisecond), Action: ActionCapture, Profile: i}))
	}

	entries, err := j.Recent(ctx, 4)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, 9, entries[0].Profile)
	assert.Equal(t, 6, entries[3].Profile)
}

func TestRecord_FillsTime(t *testing.T) {
	j := openInMemory(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	require.NoError(t, j.Record(context.Background(), Entry{Action: ActionClear, Error: "boom"}))

	entries, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, fixed.Equal(entries[0].Time))
	assert.True(t, entries[0].Failed())
}

func TestRecord_SameTimestamp(t *testing.T) {
	j := openInMemory(t)
	ts := time.Now()

	require.NoError(t, j.Record(context.Background(), Entry{Time: ts, Action: ActionCapture}))
	require.NoError(t, j.Record(context.Background(), Entry{Time: ts, Action: ActionCapture}))

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecord_Concurrent(t *testing.T) {
	j := openInMemory(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, j.Record(context.Background(), Entry{Action: ActionCapture}))
		}()
	}
	wg.Wait()

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestPersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DirName)
	cfg := DefaultConfig(dir)
	cfg.SyncWrites = false

	j, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), Entry{Action: ActionRestore, SnapshotID: "keep-me"}))
	require.NoError(t, j.Close())

	j2, err := Open(cfg)
	require.NoError(t, err)
	defer j2.Close()

	entries, err := j2.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep-me", entries[0].SnapshotID)
}

func TestClosed(t *testing.T) {
	j, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Record(context.Background(), Entry{}), ErrClosed)
	_, err = j.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancelledContext(t *testing.T) {
	j := openInMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, j.Record(ctx, Entry{}))
	_, err := j.Recent(ctx, 1)
	assert.Error(t, err)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
