// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools holds the engine's tool layer: semantic search over the
// internal document store, web search, page extraction, and Drive access.
//
// The contract is deliberately forgiving: a tool reports "nothing found"
// and downstream transport failures as descriptive Result content rather
// than an error, so a single flaky backend degrades a run instead of
// killing it. Returned errors are reserved for conditions the caller may
// want to branch on; the engine folds even those into step output.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

// Canonical tool names. These appear in run step records and in
// RunConfig.EnabledTools.
const (
	NameSemanticSearch = "semantic_search"
	NameWebSearch      = "web_search"
	NameWebExtract     = "web_extract"
	NameDriveList      = "drive_list"
	NameDriveFetch     = "drive_fetch"
)

// Result is the uniform outcome of one tool invocation. Content is always
// set, even on failure. The typed slices are filled only by the tools that
// produce them; callers that need structure read those instead of parsing
// Content back apart.
type Result struct {
	Content  string
	Sources  []string
	Metadata map[string]string

	// Typed payloads, each owned by one tool family.
	Chunks []datatypes.EvidenceChunk // semantic_search
	Hits   []SearchHit               // web_search
	Links  []string                  // web_extract
	Files  []DriveFile               // drive_list / drive_fetch
}

// SearchHit is one web search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// DriveFile is one file surfaced by the Drive tools. Text is populated
// only by drive_fetch.
type DriveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Text     string `json:"text,omitempty"`
}

// Tool executes one named capability against one input string.
type Tool interface {
	Name() string
	Execute(ctx context.Context, input string) (*Result, error)
}

// FailureResult folds a tool error into the degraded-result shape the
// engine records. The run keeps going; the failure becomes evidence of
// absence in the step log.
func FailureResult(toolName string, err error) *Result {
	return &Result{
		Content:  fmt.Sprintf("tool %s failed: %v", toolName, err),
		Metadata: map[string]string{"failed": "true"},
	}
}

// Registry maps tool names to implementations. It is populated once at
// startup and read-only afterwards, so there is no locking.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the named tool, or an error naming what was asked for.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("no tool registered under %q", name)
	}
	return t, nil
}

// Names returns the registered tool names, sorted for stable output.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
