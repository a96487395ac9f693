// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

// =============================================================================
// Mock LLM Client
// =============================================================================

// MockLLMClient implements llm.LLMClient for testing purposes.
type MockLLMClient struct {
	// Response is returned by Generate.
	Response string
	// Err is returned as error by Generate.
	Err error
	// CallCount tracks how many times Generate was called.
	CallCount int
	// LastPrompt stores the last prompt passed to Generate.
	LastPrompt string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.CallCount++
	m.LastPrompt = prompt
	return m.Response, m.Err
}

func testRun(task string) *datatypes.RunState {
	return datatypes.NewRunState(task, datatypes.RunConfig{MaxSteps: 10, Temperature: 0.3})
}

// =============================================================================
// extractJSON Tests
// =============================================================================

func TestExtractJSON_PlainObject(t *testing.T) {
	payload, ok := extractJSON(`{"a": 1}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, payload)
}

func TestExtractJSON_MarkdownFenceAndProse(t *testing.T) {
	raw := "Sure, here is the decision:\n```json\n{\"task_type\": \"open_research\"}\n```\nHope that helps!"
	payload, ok := extractJSON(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"task_type": "open_research"}`, payload)
}

func TestExtractJSON_NestedBracesAndStrings(t *testing.T) {
	raw := `prefix {"outer": {"inner": "a } inside a string"}, "n": 2} suffix`
	payload, ok := extractJSON(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"outer": {"inner": "a } inside a string"}, "n": 2}`, payload)
}

func TestExtractJSON_EscapedQuote(t *testing.T) {
	raw := `{"text": "she said \"hi\" {sort of}"}`
	payload, ok := extractJSON(raw)
	require.True(t, ok)
	assert.JSONEq(t, raw, payload)
}

func TestExtractJSON_NoObject(t *testing.T) {
	_, ok := extractJSON("I could not decide anything today.")
	assert.False(t, ok)
}

func TestExtractJSON_UnbalancedObject(t *testing.T) {
	_, ok := extractJSON(`{"truncated": `)
	assert.False(t, ok)
}

// =============================================================================
// Decision Tests
// =============================================================================

func TestClassifyTask_ParsesDecision(t *testing.T) {
	mock := &MockLLMClient{Response: `Here you go:
{"task_type": "profile_analysis", "intent_summary": "analyze Jane",
 "internal_queries": ["jane doe skills"], "needs_external_knowledge": true}`}
	o := NewLLMOracle(mock)

	decision, err := o.ClassifyTask(context.Background(), testRun("analyze Jane Doe"))
	require.NoError(t, err)
	assert.Equal(t, "profile_analysis", decision.TaskType)
	assert.Equal(t, []string{"jane doe skills"}, decision.InternalQueries)
	assert.True(t, decision.NeedsExternalKnowledge)
	assert.Equal(t, 1, mock.CallCount)
	assert.Contains(t, mock.LastPrompt, "analyze Jane Doe")
}

func TestClassifyTask_UnparseableReply(t *testing.T) {
	mock := &MockLLMClient{Response: "I refuse to answer in JSON."}
	o := NewLLMOracle(mock)

	_, err := o.ClassifyTask(context.Background(), testRun("task"))
	require.Error(t, err)
	assert.True(t, IsUnparseable(err))

	var decisionErr *DecisionError
	require.ErrorAs(t, err, &decisionErr)
	assert.Equal(t, "classify_task", decisionErr.Decision)
	assert.Contains(t, decisionErr.Raw, "I refuse")
}

func TestClassifyTask_WrongShapeIsUnparseable(t *testing.T) {
	mock := &MockLLMClient{Response: `{"internal_queries": "not a list"}`}
	o := NewLLMOracle(mock)

	_, err := o.ClassifyTask(context.Background(), testRun("task"))
	require.Error(t, err)
	assert.True(t, IsUnparseable(err))
}

func TestClassifyTask_TransportErrorIsNotUnparseable(t *testing.T) {
	backendErr := errors.New("connection refused")
	mock := &MockLLMClient{Err: backendErr}
	o := NewLLMOracle(mock)

	_, err := o.ClassifyTask(context.Background(), testRun("task"))
	require.Error(t, err)
	assert.False(t, IsUnparseable(err))
	assert.ErrorIs(t, err, backendErr)
}

func TestClassifyDriveIntent_ParsesIntent(t *testing.T) {
	mock := &MockLLMClient{Response: `{"intent": "fetch", "file_ids": ["abc"], "summarize": true}`}
	o := NewLLMOracle(mock)

	intent, err := o.ClassifyDriveIntent(context.Background(), testRun("summarize report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, datatypes.DriveIntentFetch, intent.Intent)
	assert.Equal(t, []string{"abc"}, intent.FileIDs)
	assert.True(t, intent.Summarize)
}

func TestReplan_ParsesDecision(t *testing.T) {
	mock := &MockLLMClient{Response: `{"should_finish": true, "reason": "evidence is sufficient"}`}
	o := NewLLMOracle(mock)

	decision, err := o.Replan(context.Background(), testRun("task"))
	require.NoError(t, err)
	assert.True(t, decision.ShouldFinish)
	assert.Equal(t, "evidence is sufficient", decision.Reason)
}

func TestSynthesize_ReturnsFreeText(t *testing.T) {
	mock := &MockLLMClient{Response: "A plain answer, no JSON required."}
	o := NewLLMOracle(mock)

	run := testRun("task")
	run.Citations = []datatypes.Citation{{ID: 1, Source: "doc.md"}}
	answer, err := o.Synthesize(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "A plain answer, no JSON required.", answer)
	assert.Contains(t, mock.LastPrompt, "[1] doc.md")
}

func TestSynthesizeFromDocuments_IncludesDocuments(t *testing.T) {
	mock := &MockLLMClient{Response: "summary"}
	o := NewLLMOracle(mock)

	docs := []datatypes.DriveDocument{{ID: "f1", Name: "report.pdf", Text: "quarterly numbers"}}
	_, err := o.SynthesizeFromDocuments(context.Background(), "summarize", docs)
	require.NoError(t, err)
	assert.Contains(t, mock.LastPrompt, "report.pdf")
	assert.Contains(t, mock.LastPrompt, "quarterly numbers")
}

func TestAnswerFollowup_UsesPriorAnswerOnly(t *testing.T) {
	mock := &MockLLMClient{Response: "follow-up answer"}
	o := NewLLMOracle(mock)

	answer, err := o.AnswerFollowup(context.Background(), "the original answer", "what about X?")
	require.NoError(t, err)
	assert.Equal(t, "follow-up answer", answer)
	assert.Contains(t, mock.LastPrompt, "the original answer")
	assert.Contains(t, mock.LastPrompt, "what about X?")
}
