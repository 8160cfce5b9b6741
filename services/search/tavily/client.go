// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tavily implements search.Searcher and search.Extractor against
// the Tavily REST API.
//
// # Description
//
// Requests are rate limited client-side with a token bucket and retried
// on transient failures. The API key lives in a memguard enclave and is
// injected per request.
//
// # Thread Safety
//
// Client is safe for concurrent use; the planner fans out queries from
// several goroutines.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/wayfarer/pkg/retry"
	"github.com/AleutianAI/wayfarer/pkg/secrets"
	"github.com/AleutianAI/wayfarer/services/search"
)

const (
	DefaultBaseURL = "https://api.tavily.com"

	// MaxExtractBatch is the largest URL batch /extract accepts.
	MaxExtractBatch = 20
)

// Config configures the Tavily client.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond bounds the client-side request rate. 0 disables.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	Retry retry.Config `yaml:"retry"`
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		Retry:             retry.DefaultConfig(),
	}
}

// Client calls the Tavily search and extract endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	key        *secrets.Key
	limiter    *rate.Limiter
	retry      retry.Config
}

var (
	_ search.Searcher  = (*Client)(nil)
	_ search.Extractor = (*Client)(nil)
)

// New creates a Client.
func New(cfg Config, key *secrets.Key) *Client {
	d := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        key,
		limiter:    limiter,
		retry:      cfg.Retry,
	}
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

type extractRequest struct {
	URLs []string `json:"urls"`
}

type extractResponse struct {
	Results       []search.Extracted `json:"results"`
	FailedResults []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"failed_results"`
}

// Search runs one query.
func (c *Client) Search(ctx context.Context, req search.Request) ([]search.Result, error) {
	payload := searchRequest{
		Query:          req.Query,
		SearchDepth:    req.Depth,
		MaxResults:     req.MaxResults,
		IncludeDomains: req.IncludeDomains,
	}
	var resp searchResponse
	if err := c.post(ctx, "/search", payload, &resp); err != nil {
		return nil, fmt.Errorf("tavily search %q: %w", req.Query, err)
	}
	slog.Debug("tavily search complete",
		slog.String("query", req.Query),
		slog.Int("results", len(resp.Results)),
	)
	return resp.Results, nil
}

// Extract fetches raw content for urls, splitting into batches of at
// most MaxExtractBatch. Per-URL failures are logged and skipped.
func (c *Client) Extract(ctx context.Context, urls []string) ([]search.Extracted, error) {
	var out []search.Extracted
	for start := 0; start < len(urls); start += MaxExtractBatch {
		end := min(start+MaxExtractBatch, len(urls))
		var resp extractResponse
		if err := c.post(ctx, "/extract", extractRequest{URLs: urls[start:end]}, &resp); err != nil {
			return out, fmt.Errorf("tavily extract: %w", err)
		}
		for _, f := range resp.FailedResults {
			slog.Warn("tavily could not extract url", slog.String("url", f.URL), slog.String("error", f.Error))
		}
		out = append(out, resp.Results...)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, payload, into any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = retry.Do(ctx, c.retry, "tavily", func(ctx context.Context) (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.do(ctx, path, body, into)
	})
	return err
}

func (c *Client) do(ctx context.Context, path string, body []byte, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.key.Use(func(value string) error {
		req.Header.Set("Authorization", "Bearer "+value)
		return nil
	}); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &retry.StatusError{Provider: "tavily", StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, into); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
