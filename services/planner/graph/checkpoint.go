// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// CheckpointVersion is the current checkpoint format version (semver).
const CheckpointVersion = "1.0.0"

// validThreadIDPattern defines valid characters for thread ids.
var validThreadIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateThreadID returns ErrInvalidThreadID unless id matches [a-zA-Z0-9_-]+.
func ValidateThreadID(id string) error {
	if !validThreadIDPattern.MatchString(id) {
		return fmt.Errorf("%w: must match [a-zA-Z0-9_-]+, got %q", ErrInvalidThreadID, id)
	}
	return nil
}

// Status is the outcome of a run or the state of a saved thread.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExhausted Status = "exhausted"
	StatusCanceled  Status = "canceled"
)

// Checkpoint is the saved position of a thread: the state after the last
// completed step and the node to run next.
type Checkpoint struct {
	ThreadID   string              `json:"thread_id"`
	Graph      string              `json:"graph"`
	Next       string              `json:"next"`
	Step       int                 `json:"step"`
	Path       []string            `json:"path"`
	Loops      map[string]int      `json:"loops"`
	Status     Status              `json:"status"`
	Error      string              `json:"error,omitempty"`
	FailedNode string              `json:"failed_node,omitempty"`
	State      state.ResearchState `json:"state"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// envelope is the stored form of a checkpoint.
type envelope struct {
	Version    string          `json:"version"`
	Checksum   string          `json:"checksum"`
	Checkpoint json.RawMessage `json:"checkpoint"`
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// EncodeCheckpoint serializes cp with a version and a SHA-256 checksum.
func EncodeCheckpoint(cp *Checkpoint) ([]byte, error) {
	if cp == nil {
		return nil, fmt.Errorf("%w: checkpoint must not be nil", ErrInvalidInput)
	}
	body, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	data, err := json.Marshal(envelope{
		Version:    CheckpointVersion,
		Checksum:   checksum(body),
		Checkpoint: body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint envelope: %w", err)
	}
	return data, nil
}

// DecodeCheckpoint parses and verifies data produced by EncodeCheckpoint.
// Whitespace differences (an indented file) do not affect verification.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	if env.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrCheckpointVersionMismatch, env.Version, CheckpointVersion)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, env.Checkpoint); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	if checksum(compact.Bytes()) != env.Checksum {
		return nil, ErrCheckpointCorrupt
	}

	var cp Checkpoint
	if err := json.Unmarshal(compact.Bytes(), &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	return &cp, nil
}

// Store persists checkpoints by thread id.
type Store interface {
	// Save replaces the checkpoint for cp.ThreadID.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load returns ErrCheckpointNotFound when the thread has none.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Delete is a no-op for unknown threads.
	Delete(ctx context.Context, threadID string) error

	// List returns the saved thread ids, sorted.
	List(ctx context.Context) ([]string, error)
}

// =============================================================================
// MemoryStore
// =============================================================================

// MemoryStore keeps encoded checkpoints in process memory.
//
// Thread Safety:
//
//	Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}
	data, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[cp.ThreadID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	data, ok := m.items[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, threadID)
	}
	return DecodeCheckpoint(data)
}

func (m *MemoryStore) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	delete(m.items, threadID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.items), nil
}

// =============================================================================
// FileStore
// =============================================================================

// FileStore writes one JSON file per thread under a directory.
//
// Description:
//
//	Files are named {threadID}.json and written atomically (temp file,
//	fsync, rename) so a crash never leaves a half-written checkpoint.
//	Thread ids are restricted to [a-zA-Z0-9_-]+ which keeps them safe
//	as file names.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: checkpoint directory must not be empty", ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(threadID string) string {
	return filepath.Join(f.dir, threadID+".json")
}

func (f *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}
	data, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return fmt.Errorf("indent checkpoint: %w", err)
	}
	return writeAtomic(f.path(cp.ThreadID), pretty.Bytes())
}

func (f *FileStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(threadID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return DecodeCheckpoint(data)
}

func (f *FileStore) Delete(ctx context.Context, threadID string) error {
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}
	err := os.Remove(f.path(threadID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func (f *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if validThreadIDPattern.MatchString(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// writeAtomic writes data to path via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	success = true
	return nil
}
