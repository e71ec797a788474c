// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal keeps a durable history of snapshot actions in BadgerDB.
//
// Every capture, promotion, restore, rollback and bucket clear is appended as
// an Entry. Keys are ordered by time so Recent can walk backwards from the
// newest entry without loading the whole history.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Action names a recorded operation.
type Action string

const (
	ActionCapture  Action = "capture"
	ActionPromote  Action = "promote"
	ActionRestore  Action = "restore"
	ActionRollback Action = "rollback"
	ActionClear    Action = "clear"
	ActionImport   Action = "import"
)

// Entry is one journal record.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Time       time.Time `json:"time"`
	Action     Action    `json:"action"`
	Bucket     string    `json:"bucket,omitempty"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Profile    int       `json:"profile"`
	Error      string    `json:"error,omitempty"`
}

// Failed reports whether the entry records a failure.
func (e Entry) Failed() bool {
	return e.Error != ""
}

var keyPrefix = []byte("entry/")

// ErrClosed is returned by operations on a closed Journal.
var ErrClosed = errors.New("journal closed")

// Journal is the BadgerDB-backed action history.
//
// # Thread Safety
//
// Safe for concurrent use.
type Journal struct {
	db  *badger.DB
	gc  *gcRunner
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the journal described by cfg.
//
// # Inputs
//
//   - cfg: database location and tuning; use InMemoryConfig in tests
//
// # Outputs
//
//   - *Journal: open journal. Caller must call Close.
//   - error: non-nil when the database cannot be opened (for example when
//     another ddarchive process holds the directory lock)
func Open(cfg Config) (*Journal, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db, now: time.Now}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		j.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return j, nil
}

// Record appends e, filling ID and Time when unset.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Time.IsZero() {
		e.Time = j.now()
	}
	e.Time = e.Time.UTC()

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e), value)
	})
}

// Recent returns up to limit entries, newest first. A limit <= 0 returns all.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	var result []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, keyPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			if limit > 0 && len(result) >= limit {
				break
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode journal entry: %w", err)
			}
			result = append(result, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close stops garbage collection and closes the database. Safe to call twice.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.gc != nil {
		j.gc.stop()
	}
	return j.db.Close()
}

// entryKey is prefix | unix nanos (big endian) | uuid, so keys sort by time.
func entryKey(e Entry) []byte {
	key := make([]byte, 0, len(keyPrefix)+8+16)
	key = append(key, keyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(e.Time.UnixNano()))
	return append(key, e.ID[:]...)
}
