// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"context"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// maxOptionLabel keeps select rows on one line in an 80 column terminal.
const maxOptionLabel = 72

// PromptOption is one choice in a Select prompt.
type PromptOption struct {
	Label       string
	Description string
	Value       string
	Recommended bool
}

// Select asks the user to pick one option and returns its Value.
//
// # Inputs
//
//   - ctx: Cancelling it aborts the prompt.
//   - title: The question, shown above the list.
//   - options: The choices, in display order.
//   - accessible: Replaces the TUI with plain numbered prompts for screen
//     readers.
//
// # Outputs
//
//   - string: The chosen Value.
//   - error: huh.ErrUserAborted when the user quits, ctx.Err() when
//     cancelled.
func Select(ctx context.Context, title string, options []PromptOption, accessible bool) (string, error) {
	opts := make([]huh.Option[string], 0, len(options))
	for _, o := range options {
		opts = append(opts, huh.NewOption(optionLabel(o), o.Value))
	}

	var choice string
	field := huh.NewSelect[string]().
		Title(title).
		Options(opts...).
		Value(&choice)
	if err := run(ctx, field, accessible); err != nil {
		return "", err
	}
	return choice, nil
}

// Input asks for one line of free text.
func Input(ctx context.Context, title string, accessible bool) (string, error) {
	var text string
	field := huh.NewInput().
		Title(title).
		Value(&text)
	if err := run(ctx, field, accessible); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func run(ctx context.Context, field huh.Field, accessible bool) error {
	return huh.NewForm(huh.NewGroup(field)).
		WithTheme(wayfarerTheme()).
		WithAccessible(accessible).
		RunWithContext(ctx)
}

func optionLabel(o PromptOption) string {
	label := o.Label
	if o.Description != "" {
		label += " - " + o.Description
	}
	label = truncate(label, maxOptionLabel)
	if o.Recommended {
		label += " (recommended)"
	}
	return label
}

// wayfarerTheme styles huh forms with the Wayfarer palette.
func wayfarerTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Base = t.Focused.Base.BorderForeground(ColorTealDeep)
	t.Focused.Title = t.Focused.Title.Foreground(ColorTealBright).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(ColorSlate)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorTealPrimary)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorTealBright)
	t.Focused.ErrorIndicator = t.Focused.ErrorIndicator.Foreground(ColorError)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorError)

	t.Blurred = t.Focused
	t.Blurred.Base = t.Blurred.Base.BorderStyle(lipgloss.HiddenBorder())
	return t
}

// truncate shortens s to maxLen runes, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
