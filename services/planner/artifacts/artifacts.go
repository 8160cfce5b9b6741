// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package artifacts writes finished itineraries to durable storage.
//
// # Description
//
// A Sink stores one named artifact and returns its location. LocalSink
// writes into a directory, GCSSink uploads to a Cloud Storage bucket and
// MirrorSink fans a write out to a primary sink plus best-effort mirrors.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/services/planner/state"
)

// ErrInvalidName is returned for artifact names that are not a plain
// file name.
var ErrInvalidName = errors.New("invalid artifact name")

// Sink stores artifacts.
type Sink interface {
	// Write stores data under name and returns where it landed.
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// FileName returns the artifact name for a trip:
// {destination}_Itinerary_{YYYY-MM-DD_HH-MM-SS}.{ext}
func FileName(destination string, format state.OutputFormat, at time.Time) string {
	dest := strings.NewReplacer(" ", "_", "/", "_", `\`, "_").Replace(strings.TrimSpace(destination))
	return fmt.Sprintf("%s_Itinerary_%s.%s", dest, at.Format("2006-01-02_15-04-05"), format.Extension())
}

// ContentType returns the MIME type for an artifact name.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// =============================================================================
// LocalSink
// =============================================================================

// LocalSink writes artifacts into a directory.
type LocalSink struct {
	dir string
}

// NewLocalSink creates dir if needed.
func NewLocalSink(dir string) (*LocalSink, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &LocalSink{dir: abs}, nil
}

// Dir returns the absolute output directory.
func (s *LocalSink) Dir() string { return s.dir }

// Write stores data atomically. The artifact appears under its final
// name only after the bytes are synced; a context cancelled before the
// rename leaves nothing behind.
func (s *LocalSink) Write(ctx context.Context, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.dir, ".artifact-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return "", err
	}

	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		cleanup()
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return final, nil
}

// =============================================================================
// MirrorSink
// =============================================================================

// MirrorSink writes to a primary sink and copies to mirrors. Mirror
// failures are logged and do not fail the write.
type MirrorSink struct {
	primary Sink
	mirrors []Sink
	logger  *slog.Logger
}

func NewMirrorSink(primary Sink, logger *slog.Logger, mirrors ...Sink) *MirrorSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirrorSink{primary: primary, mirrors: mirrors, logger: logger}
}

// Write returns the primary location.
func (m *MirrorSink) Write(ctx context.Context, name string, data []byte) (string, error) {
	loc, err := m.primary.Write(ctx, name, data)
	if err != nil {
		return "", err
	}
	for _, mirror := range m.mirrors {
		mloc, err := mirror.Write(ctx, name, data)
		if err != nil {
			m.logger.Warn("artifact mirror failed",
				slog.String("name", name),
				slog.String("error", err.Error()))
			continue
		}
		m.logger.Info("artifact mirrored", slog.String("location", mloc))
	}
	return loc, nil
}
