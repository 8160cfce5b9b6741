// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		if !strings.Contains(icon.Render(), string(icon)) {
			t.Errorf("Render() of %q lost the glyph", icon)
		}
	}
}

func TestPrinter_PlainProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Progress("🔎 Starting initial research for Lisbon...\n")
	p.Progress("\n")
	p.Progress("❌ Error during research: boom")

	want := "🔎 Starting initial research for Lisbon...\n❌ Error during research: boom\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrinter_PlainBoxesAreUnstyled(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Prompt("Select a cluster")
	p.Summary("Enjoy your trip! 🚀")
	p.Failure(errors.New("loop limit"))
	p.KeyValue("Thread", "abc")

	out := buf.String()
	for _, want := range []string{"Select a cluster\n", "Enjoy your trip! 🚀\n", "✗ loop limit\n", "Thread:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "╭") {
		t.Errorf("plain printer should not draw borders: %q", out)
	}
}

func TestPrinter_StyledSummaryHasBorder(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	p.Summary("ready")

	if !strings.Contains(buf.String(), "ready") {
		t.Errorf("styled output lost text: %q", buf.String())
	}
}
