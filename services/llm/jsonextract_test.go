// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "plain object",
			response: `{"grade": 2}`,
			want:     `{"grade": 2}`,
		},
		{
			name:     "fenced json block",
			response: "Here you go:\n```json\n{\"clusters\": []}\n```\nThanks",
			want:     `{"clusters": []}`,
		},
		{
			name:     "untagged fence",
			response: "```\n[1, 2]\n```",
			want:     `[1, 2]`,
		},
		{
			name:     "skips non-json fence",
			response: "```python\nprint({'a': 1})\n```\n{\"ok\": true}",
			want:     `{"ok": true}`,
		},
		{
			name:     "prose with stray bracket before payload",
			response: `Grade [see below] {"grade": 1, "critical_gaps": ["no {dining}"]}`,
			want:     `{"grade": 1, "critical_gaps": ["no {dining}"]}`,
		},
		{
			name:     "escaped quotes inside strings",
			response: `{"q": "say \"hi\" }"}`,
			want:     `{"q": "say \"hi\" }"}`,
		},
		{
			name:     "no json",
			response: "I cannot help with that.",
			wantErr:  true,
		},
		{
			name:     "truncated",
			response: `{"grade": 2`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONAs(t *testing.T) {
	type eval struct {
		Grade        int      `json:"grade"`
		CriticalGaps []string `json:"critical_gaps"`
	}

	got, err := ExtractJSONAs[eval]("```json\n{\"grade\": 1, \"critical_gaps\": [\"transport\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Grade)
	assert.Equal(t, []string{"transport"}, got.CriticalGaps)

	_, err = ExtractJSONAs[eval](`{"grade": "high"}`)
	assert.Error(t, err)
}
