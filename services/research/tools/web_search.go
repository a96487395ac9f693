// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var webSearchTracer = otel.Tracer("aleutian.research.tools.web_search")

const maxSearchHits = 10

// WebSearch queries a SearxNG-compatible metasearch endpoint and returns
// result titles, URLs, and snippets. The input string is the query.
//
// All outbound calls go through a shared rate limiter so a burst of
// external-phase queries cannot hammer the search instance.
type WebSearch struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewWebSearch creates the tool against the given SearxNG base URL
// (e.g. "http://searxng:8080"). The limiter may be shared with other
// outbound tools; nil disables rate limiting.
func NewWebSearch(baseURL string, limiter *rate.Limiter) *WebSearch {
	return &WebSearch{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    limiter,
	}
}

func (w *WebSearch) Name() string { return NameWebSearch }

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (w *WebSearch) Execute(ctx context.Context, input string) (*Result, error) {
	ctx, span := webSearchTracer.Start(ctx, "WebSearch.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("query", input))

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return FailureResult(NameWebSearch, err), nil
		}
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", w.baseURL, url.QueryEscape(input))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return FailureResult(NameWebSearch, err), nil
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search request failed")
		slog.Warn("Web search request failed", "query", input, "error", err)
		return FailureResult(NameWebSearch, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
		return FailureResult(NameWebSearch,
			fmt.Errorf("search endpoint returned status %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return FailureResult(NameWebSearch, err), nil
	}

	var parsed searxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return FailureResult(NameWebSearch, fmt.Errorf("bad search response: %w", err)), nil
	}

	if len(parsed.Results) == 0 {
		return &Result{Content: fmt.Sprintf("no web results for %q", input)}, nil
	}

	hits := make([]SearchHit, 0, maxSearchHits)
	sources := make([]string, 0, maxSearchHits)
	var b strings.Builder
	for i, r := range parsed.Results {
		if i >= maxSearchHits {
			break
		}
		hits = append(hits, SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Content})
		sources = append(sources, r.URL)
		fmt.Fprintf(&b, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))

	return &Result{
		Content: b.String(),
		Sources: sources,
		Hits:    hits,
	}, nil
}
