// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the language model backends used by the planner.
//
// Every backend implements LLMClient. The planner only needs chat-style
// completion with an optional structured-output hint (JSONMode); model
// responses are always parsed with ExtractJSON/ExtractJSONAs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/wayfarer/pkg/retry"
	"github.com/AleutianAI/wayfarer/pkg/secrets"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// JSONMode asks the backend for a JSON object response where the
	// provider supports it. Callers must still validate the result.
	JSONMode bool `json:"json_mode"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// ErrEmptyResponse is returned when a backend answers without text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ErrUnknownBackend is returned by New for unsupported backend types.
var ErrUnknownBackend = errors.New("unknown model backend")

// Config selects and configures a backend.
type Config struct {
	// Type is one of "anthropic", "openai", "ollama".
	Type    string        `yaml:"type"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   retry.Config  `yaml:"retry"`
}

// New builds the backend named by cfg.Type. key may be nil for ollama.
func New(cfg Config, key *secrets.Key) (LLMClient, error) {
	switch strings.ToLower(cfg.Type) {
	case "anthropic", "claude":
		if key == nil {
			return nil, fmt.Errorf("anthropic backend: %w", secrets.ErrNotFound)
		}
		return NewAnthropicClient(cfg, key), nil
	case "openai":
		if key == nil {
			return nil, fmt.Errorf("openai backend: %w", secrets.ErrNotFound)
		}
		return NewOpenAIClient(cfg, key)
	case "ollama":
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Type)
	}
}

// splitSystem separates system prompts from the conversation turns.
// Multiple system messages are joined with a blank line.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if strings.EqualFold(m.Role, RoleSystem) {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
