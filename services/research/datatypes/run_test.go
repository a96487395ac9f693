// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunState_Defaults(t *testing.T) {
	run := NewRunState("investigate X", RunConfig{})

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "investigate X", run.Task)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, PhaseUnderstanding, run.Phase)
	assert.Equal(t, DefaultMaxSteps, run.Config.MaxSteps)
	assert.False(t, run.CreatedAt.IsZero())
	assert.Nil(t, run.CompletedAt)
	assert.False(t, run.Terminal())
}

func TestRunState_TerminalStatuses(t *testing.T) {
	for _, status := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusMaxStepsReached} {
		run := NewRunState("task", RunConfig{})
		run.Status = status
		assert.True(t, run.Terminal(), "status %s should be terminal", status)
	}
}

func TestRunConfig_Validate(t *testing.T) {
	good := RunConfig{MaxSteps: 12, Temperature: 0.2}
	assert.NoError(t, good.Validate())

	tooMany := RunConfig{MaxSteps: 500}
	assert.Error(t, tooMany.Validate())

	badTemp := RunConfig{MaxSteps: 5, Temperature: 3.5}
	assert.Error(t, badTemp.Validate())
}

func TestRunConfig_ToolEnabled(t *testing.T) {
	open := RunConfig{}
	assert.True(t, open.ToolEnabled("semantic_search"), "an empty list enables everything")

	restricted := RunConfig{EnabledTools: []string{"web_search"}}
	assert.True(t, restricted.ToolEnabled("web_search"))
	assert.False(t, restricted.ToolEnabled("semantic_search"))
}

func TestEvidenceChunk_DedupKey(t *testing.T) {
	a := EvidenceChunk{DocumentID: "doc1", ChunkIndex: 3, Text: "shared text"}
	b := EvidenceChunk{DocumentID: "doc1", ChunkIndex: 3, Text: "shared text", Distance: 0.9}
	assert.Equal(t, a.DedupKey(), b.DedupKey(), "the retrieval score never affects identity")

	c := EvidenceChunk{DocumentID: "doc2", ChunkIndex: 3, Text: "shared text"}
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
}

func TestEvidenceChunk_DedupKeyUsesTextPrefixOnly(t *testing.T) {
	prefix := strings.Repeat("x", 120)
	a := EvidenceChunk{DocumentID: "doc", ChunkIndex: 0, Text: prefix + " tail one"}
	b := EvidenceChunk{DocumentID: "doc", ChunkIndex: 0, Text: prefix + " a different tail"}
	assert.Equal(t, a.DedupKey(), b.DedupKey())

	short := EvidenceChunk{DocumentID: "doc", ChunkIndex: 0, Text: "short"}
	assert.Contains(t, short.DedupKey(), "short")
}

func TestRunState_LogDecision(t *testing.T) {
	run := NewRunState("task", RunConfig{})
	run.LogDecision(PhaseStructuring, "replanned with %d queries", 2)

	require.Len(t, run.Exploration.DecisionLog, 1)
	assert.Equal(t, "[structuring] replanned with 2 queries", run.Exploration.DecisionLog[0])
}

func TestRunState_AppendStep(t *testing.T) {
	run := NewRunState("task", RunConfig{})

	idx := run.AppendStep("web_search", "query", "find sources", "results", []string{"https://a"}, 20*time.Millisecond)
	assert.Equal(t, 0, idx)
	idx = run.AppendStep("web_extract", "https://a", "read the page", "text", nil, time.Millisecond)
	assert.Equal(t, 1, idx)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "web_search", run.Steps[0].Tool)
	assert.Equal(t, []string{"https://a"}, run.Steps[0].Sources)
	assert.False(t, run.Steps[1].Timestamp.IsZero())
}
