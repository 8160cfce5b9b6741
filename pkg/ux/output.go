// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the Wayfarer CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Wayfarer color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box      lipgloss.Style
	InfoBox  lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	InfoBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealPrimary).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes planner progress to a terminal.
//
// Plain disables styling for non-terminal output (pipes, CI logs).
type Printer struct {
	W     io.Writer
	Plain bool
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, plain bool) *Printer {
	return &Printer{W: w, Plain: plain}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if p.Plain {
		return text
	}
	return s.Render(text)
}

// Title prints a styled heading line.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.W, p.style(Styles.Title, text))
}

// Progress prints one progress message. Messages that start with an
// error marker are rendered in the error color.
func (p *Printer) Progress(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	switch {
	case strings.HasPrefix(text, "❌"), strings.HasPrefix(text, "🚨"):
		fmt.Fprintln(p.W, p.style(Styles.Error, text))
	case strings.HasPrefix(text, "✓"), strings.HasPrefix(text, "✔️"):
		fmt.Fprintln(p.W, p.style(Styles.Success, text))
	default:
		fmt.Fprintln(p.W, text)
	}
}

// Prompt prints an interactive prompt inside an info box.
func (p *Printer) Prompt(text string) {
	if p.Plain {
		fmt.Fprintln(p.W, text)
		return
	}
	fmt.Fprintln(p.W, Styles.InfoBox.Render(strings.TrimRight(text, "\n")))
}

// Summary prints the final summary inside a box.
func (p *Printer) Summary(text string) {
	if p.Plain {
		fmt.Fprintln(p.W, text)
		return
	}
	fmt.Fprintln(p.W, Styles.Box.Render(strings.TrimRight(text, "\n")))
}

// Failure prints an error in an error box.
func (p *Printer) Failure(err error) {
	msg := fmt.Sprintf("%s %v", IconError, err)
	if p.Plain {
		fmt.Fprintln(p.W, msg)
		return
	}
	fmt.Fprintln(p.W, Styles.ErrorBox.Render(msg))
}

// KeyValue prints an aligned "key: value" line.
func (p *Printer) KeyValue(key, value string) {
	fmt.Fprintf(p.W, "  %s %s\n", p.style(Styles.Muted, fmt.Sprintf("%-14s", key+":")), value)
}
