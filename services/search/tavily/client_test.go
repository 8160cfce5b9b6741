// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/wayfarer/pkg/retry"
	"github.com/AleutianAI/wayfarer/pkg/secrets"
	"github.com/AleutianAI/wayfarer/services/search"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	key, err := secrets.NewKey("tavily", []byte("tvly-test"))
	require.NoError(t, err)
	return New(Config{
		BaseURL: url,
		Retry:   retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
	}, key)
}

func TestClient_Search(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"query":"q","results":[
			{"url":"https://booking.com/a","title":"A","content":"hotel","score":0.9},
			{"url":"https://hotels.com/b","title":"B","content":"inn","score":0.5,"published_date":"2025-01-01"}]}`))
	}))
	defer srv.Close()

	results, err := newTestClient(t, srv.URL).Search(context.Background(), search.Request{
		Query:          "hotels Lisbon 2026",
		Depth:          search.DepthAdvanced,
		MaxResults:     5,
		IncludeDomains: []string{"booking.com", "hotels.com"},
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://booking.com/a", results[0].URL)
	assert.Equal(t, "2025-01-01", results[1].PublishedDate)
	assert.Equal(t, "advanced", got.SearchDepth)
	assert.Equal(t, 5, got.MaxResults)
	assert.Equal(t, []string{"booking.com", "hotels.com"}, got.IncludeDomains)
}

func TestClient_SearchRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	results, err := newTestClient(t, srv.URL).Search(context.Background(), search.Request{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_SearchBadRequestIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Search(context.Background(), search.Request{Query: "q"})
	var statusErr *retry.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_UndecodableBodyIsNotResent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Extract(context.Background(), []string{"https://example.com/1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ExtractBatchesAndSkipsFailures(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches = append(batches, req.URLs)

		resp := extractResponse{}
		for i, u := range req.URLs {
			if i == 0 {
				resp.FailedResults = append(resp.FailedResults, struct {
					URL   string `json:"url"`
					Error string `json:"error"`
				}{URL: u, Error: "timeout"})
				continue
			}
			resp.Results = append(resp.Results, search.Extracted{URL: u, RawContent: "content of " + u})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	urls := make([]string, 25)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	out, err := newTestClient(t, srv.URL).Extract(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], MaxExtractBatch)
	assert.Len(t, batches[1], 5)
	assert.Len(t, out, 23)
	assert.Equal(t, "content of https://example.com/1", out[0].RawContent)
}

func TestNew_AppliesDefaults(t *testing.T) {
	key, err := secrets.NewKey("tavily", []byte("k"))
	require.NoError(t, err)
	c := New(Config{}, key)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}
