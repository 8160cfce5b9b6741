// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfarer/services/planner/state"
)

func TestFileName(t *testing.T) {
	at := time.Date(2026, 5, 1, 14, 3, 9, 0, time.UTC)

	assert.Equal(t, "New_York_Itinerary_2026-05-01_14-03-09.pdf", FileName("New York", state.FormatPDF, at))
	assert.Equal(t, "Lisbon_Itinerary_2026-05-01_14-03-09.md", FileName("Lisbon", state.FormatMarkdown, at))
	assert.Equal(t, "a_b_Itinerary_2026-05-01_14-03-09.md", FileName("a/b", state.FormatMarkdown, at))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType("x.pdf"))
	assert.Equal(t, "text/markdown; charset=utf-8", ContentType("x.md"))
	assert.Equal(t, "application/octet-stream", ContentType("x.bin"))
}

// --- LocalSink ---

func TestLocalSink_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewLocalSink(dir)
	require.NoError(t, err)

	loc, err := sink.Write(context.Background(), "trip.md", []byte("# Trip"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sink.Dir(), "trip.md"), loc)

	got, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "# Trip", string(got))
}

func TestLocalSink_CancelledLeavesNothing(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sink.Write(ctx, "trip.pdf", []byte("%PDF-"))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(sink.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalSink_RejectsPaths(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../escape.md", "sub/trip.md"} {
		_, err := sink.Write(context.Background(), name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

// --- GCSSink ---

type bufferWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *bufferWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func fakeGCS(prefix string, w *bufferWriter, seen *[]string) *GCSSink {
	return &GCSSink{
		bucket: "trips",
		prefix: prefix,
		newWriter: func(_ context.Context, object, contentType string) io.WriteCloser {
			*seen = append(*seen, object, contentType)
			return w
		},
	}
}

func TestGCSSink_Write(t *testing.T) {
	w := &bufferWriter{}
	var seen []string
	sink := fakeGCS("itineraries", w, &seen)

	loc, err := sink.Write(context.Background(), "Rome_Itinerary.pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)

	assert.Equal(t, "gs://trips/itineraries/Rome_Itinerary.pdf", loc)
	assert.Equal(t, []string{"itineraries/Rome_Itinerary.pdf", "application/pdf"}, seen)
	assert.Equal(t, "%PDF-1.3", w.String())
	assert.True(t, w.closed)
	assert.NoError(t, sink.Close())
}

func TestGCSSink_CloseError(t *testing.T) {
	w := &bufferWriter{closeErr: errors.New("quota exceeded")}
	var seen []string
	sink := fakeGCS("", w, &seen)

	_, err := sink.Write(context.Background(), "a.md", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, "a.md", seen[0])
}

// --- MirrorSink ---

type fakeSink struct {
	loc   string
	err   error
	calls int
}

func (f *fakeSink) Write(context.Context, string, []byte) (string, error) {
	f.calls++
	return f.loc, f.err
}

func TestMirrorSink(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("mirror failure is tolerated", func(t *testing.T) {
		primary := &fakeSink{loc: "/out/a.pdf"}
		broken := &fakeSink{err: errors.New("offline")}
		ok := &fakeSink{loc: "gs://b/a.pdf"}

		loc, err := NewMirrorSink(primary, logger, broken, ok).Write(context.Background(), "a.pdf", nil)
		require.NoError(t, err)
		assert.Equal(t, "/out/a.pdf", loc)
		assert.Equal(t, 1, broken.calls)
		assert.Equal(t, 1, ok.calls)
	})

	t.Run("primary failure skips mirrors", func(t *testing.T) {
		primary := &fakeSink{err: errors.New("disk full")}
		mirror := &fakeSink{loc: "gs://b/a.pdf"}

		_, err := NewMirrorSink(primary, logger, mirror).Write(context.Background(), "a.pdf", nil)
		require.Error(t, err)
		assert.Zero(t, mirror.calls)
	})
}
