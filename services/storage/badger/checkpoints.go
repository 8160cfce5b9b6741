// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/wayfarer/services/planner/graph"
)

const checkpointPrefix = "checkpoint/"

// CheckpointStore keeps planner checkpoints in BadgerDB.
//
// # Description
//
// Checkpoints are stored in the shared envelope format (version and
// checksum) under "checkpoint/{thread_id}". A positive TTL makes BadgerDB
// expire threads that are not saved again within that time, so abandoned
// sessions do not accumulate.
//
// # Thread Safety
//
// Safe for concurrent use.
type CheckpointStore struct {
	db  *DB
	ttl time.Duration
}

var _ graph.Store = (*CheckpointStore)(nil)

// NewCheckpointStore wraps db. A ttl of zero keeps checkpoints forever.
func NewCheckpointStore(db *DB, ttl time.Duration) (*CheckpointStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl must not be negative, got %s", ttl)
	}
	return &CheckpointStore{db: db, ttl: ttl}, nil
}

func checkpointKey(threadID string) []byte {
	return []byte(checkpointPrefix + threadID)
}

// Save replaces the checkpoint of cp.ThreadID and restarts its TTL.
func (s *CheckpointStore) Save(ctx context.Context, cp *graph.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if cp == nil {
		return fmt.Errorf("%w: checkpoint must not be nil", graph.ErrInvalidInput)
	}
	if err := graph.ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}
	data, err := graph.EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(checkpointKey(cp.ThreadID), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Load returns graph.ErrCheckpointNotFound for unknown or expired threads.
func (s *CheckpointStore) Load(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := graph.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(threadID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", graph.ErrCheckpointNotFound, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", threadID, err)
	}
	return graph.DecodeCheckpoint(data)
}

// Delete removes a thread. Unknown threads are not an error.
func (s *CheckpointStore) Delete(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := graph.ValidateThreadID(threadID); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(checkpointKey(threadID))
	})
}

// List returns saved thread ids in key order.
func (s *CheckpointStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(checkpointPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), checkpointPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return ids, nil
}
