// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a response contains no parseable JSON value.
var ErrNoJSON = errors.New("no valid JSON object found in response")

// fencePattern matches markdown code fences with an optional language tag.
// Captures: (1) language, (2) body.
var fencePattern = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n?```")

// ExtractJSON pulls the first JSON object or array out of a model reply.
//
// Fenced blocks tagged json (or untagged) win over raw text. Otherwise
// every '{' or '[' is tried in order until one balances into valid JSON,
// so prose containing stray brackets before the payload still parses.
func ExtractJSON(response string) (string, error) {
	for _, m := range fencePattern.FindAllStringSubmatch(response, -1) {
		lang := strings.ToLower(m[1])
		if lang != "" && lang != "json" {
			continue
		}
		body := strings.TrimSpace(m[2])
		if isValidJSON(body) {
			return body, nil
		}
	}

	for i := 0; i < len(response); i++ {
		c := response[i]
		if c != '{' && c != '[' {
			continue
		}
		candidate := balanced(response[i:])
		if candidate != "" && isValidJSON(candidate) {
			return candidate, nil
		}
	}
	return "", ErrNoJSON
}

// ExtractJSONAs extracts JSON and unmarshals it into T.
func ExtractJSONAs[T any](response string) (T, error) {
	var result T

	raw, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// balanced returns the prefix of s whose opening bracket s[0] is closed,
// honoring string literals and escapes. Returns "" when unbalanced.
func balanced(s string) string {
	open := s[0]
	closeChar := byte('}')
	if open == '[' {
		closeChar = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closeChar:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}
