// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/research/tools"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// =============================================================================
// Mocks
// =============================================================================

// mockOracle implements oracle.Oracle with scripted decisions and records
// which decisions were consulted.
type mockOracle struct {
	classification *datatypes.TaskClassification
	classifyErr    error

	driveIntent *datatypes.DriveIntent
	driveErr    error

	structuring  *datatypes.StructuringResult
	structureErr error

	replanDecision *datatypes.ReplanDecision
	replanErr      error

	answer    string
	answerErr error

	driveAnswer    string
	driveAnswerErr error

	calls []string
}

func (m *mockOracle) ClassifyTask(ctx context.Context, run *datatypes.RunState) (*datatypes.TaskClassification, error) {
	m.calls = append(m.calls, "classify_task")
	return m.classification, m.classifyErr
}

func (m *mockOracle) ClassifyDriveIntent(ctx context.Context, run *datatypes.RunState) (*datatypes.DriveIntent, error) {
	m.calls = append(m.calls, "classify_drive_intent")
	if m.driveIntent == nil && m.driveErr == nil {
		return &datatypes.DriveIntent{Intent: datatypes.DriveIntentNone}, nil
	}
	return m.driveIntent, m.driveErr
}

func (m *mockOracle) StructureKnowledge(ctx context.Context, run *datatypes.RunState) (*datatypes.StructuringResult, error) {
	m.calls = append(m.calls, "structure_knowledge")
	if m.structuring == nil && m.structureErr == nil {
		return &datatypes.StructuringResult{}, nil
	}
	return m.structuring, m.structureErr
}

func (m *mockOracle) Replan(ctx context.Context, run *datatypes.RunState) (*datatypes.ReplanDecision, error) {
	m.calls = append(m.calls, "replan")
	if m.replanDecision == nil && m.replanErr == nil {
		return &datatypes.ReplanDecision{ShouldFinish: true, Reason: "default"}, nil
	}
	return m.replanDecision, m.replanErr
}

func (m *mockOracle) Synthesize(ctx context.Context, run *datatypes.RunState) (string, error) {
	m.calls = append(m.calls, "synthesize")
	return m.answer, m.answerErr
}

func (m *mockOracle) SynthesizeFromDocuments(ctx context.Context, task string, docs []datatypes.DriveDocument) (string, error) {
	m.calls = append(m.calls, "synthesize_documents")
	return m.driveAnswer, m.driveAnswerErr
}

func (m *mockOracle) AnswerFollowup(ctx context.Context, priorAnswer, question string) (string, error) {
	m.calls = append(m.calls, "followup")
	return m.answer, m.answerErr
}

func (m *mockOracle) called(decision string) bool {
	for _, c := range m.calls {
		if c == decision {
			return true
		}
	}
	return false
}

// mockTool returns the same result for every invocation and counts calls.
type mockTool struct {
	name   string
	result *tools.Result
	calls  int
}

func (m *mockTool) Name() string { return m.name }

func (m *mockTool) Execute(ctx context.Context, input string) (*tools.Result, error) {
	m.calls++
	if m.result == nil {
		return &tools.Result{Content: "ok: " + input}, nil
	}
	return m.result, nil
}

// memStore is an in-memory RunStore. Snapshots are deep-copied through
// JSON so later engine mutations cannot alias stored state.
type memStore struct {
	mu   sync.Mutex
	runs map[string]*datatypes.RunState
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*datatypes.RunState)}
}

func (s *memStore) Get(ctx context.Context, id string) (*datatypes.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.New("run not found")
	}
	return run, nil
}

func (s *memStore) Set(ctx context.Context, run *datatypes.RunState) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return err
	}
	var copied datatypes.RunState
	if err := json.Unmarshal(raw, &copied); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = &copied
	return nil
}

func (s *memStore) List(ctx context.Context, limit int) ([]*datatypes.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*datatypes.RunState
	for _, run := range s.runs {
		out = append(out, run)
	}
	return out, nil
}

func newTestEngine(o *mockOracle, testTools ...tools.Tool) (*Engine, *memStore) {
	s := newMemStore()
	return NewEngine(o, tools.NewRegistry(testTools...), s, nil), s
}

func runState(task string, maxSteps int) *datatypes.RunState {
	return datatypes.NewRunState(task, datatypes.RunConfig{MaxSteps: maxSteps})
}

// =============================================================================
// Leaf Component Tests
// =============================================================================

func TestNormalizeQueries(t *testing.T) {
	out := normalizeQueries([]string{" alpha ", "", "alpha", "beta"}, "task")
	assert.Equal(t, []string{"alpha", "beta"}, out)
}

func TestNormalizeQueries_FallsBackToTask(t *testing.T) {
	out := normalizeQueries([]string{"", "  "}, "the original task")
	assert.Equal(t, []string{"the original task"}, out)
}

func TestExpandInternalQueries_ThinSetGetsVariants(t *testing.T) {
	out := expandInternalQueries([]string{"only one"}, "quantum routing", "factual_question")
	require.Len(t, out, 3)
	assert.Contains(t, out, "overview of quantum routing")
	assert.Contains(t, out, "details about quantum routing")
}

func TestExpandInternalQueries_ProfileFacetsAndCap(t *testing.T) {
	out := expandInternalQueries([]string{"q1", "q2", "q3"}, "Jane Doe", datatypes.TaskTypeProfileAnalysis)
	assert.Len(t, out, maxInternalQueries)
	assert.Contains(t, out, "Jane Doe skills")
}

func TestMergeChunks_DropsDuplicateKeys(t *testing.T) {
	a := datatypes.EvidenceChunk{DocumentID: "d1", ChunkIndex: 0, Text: "same text", Distance: 0.1}
	b := datatypes.EvidenceChunk{DocumentID: "d1", ChunkIndex: 0, Text: "same text", Distance: 0.9}
	c := datatypes.EvidenceChunk{DocumentID: "d1", ChunkIndex: 1, Text: "same text"}

	merged := mergeChunks(nil, []datatypes.EvidenceChunk{a, b, c})
	require.Len(t, merged, 2)
	// First appearance wins regardless of score.
	assert.Equal(t, 0.1, merged[0].Distance)
}

func TestMergeChunks_PrefixKeyOnly(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	a := datatypes.EvidenceChunk{DocumentID: "d", ChunkIndex: 0, Text: string(long) + "tail-one"}
	b := datatypes.EvidenceChunk{DocumentID: "d", ChunkIndex: 0, Text: string(long) + "tail-two"}

	// Identical first 120 chars means identical evidence.
	merged := mergeChunks([]datatypes.EvidenceChunk{a}, []datatypes.EvidenceChunk{b})
	assert.Len(t, merged, 1)
}

func TestCollectCitations_FirstOccurrenceIDs(t *testing.T) {
	steps := []datatypes.Step{
		{Sources: []string{"doc-a", "doc-b"}},
		{Sources: []string{"doc-b", "doc-c", ""}},
	}
	citations := collectCitations(steps)
	require.Len(t, citations, 3)
	assert.Equal(t, datatypes.Citation{ID: 1, Source: "doc-a"}, citations[0])
	assert.Equal(t, datatypes.Citation{ID: 2, Source: "doc-b"}, citations[1])
	assert.Equal(t, datatypes.Citation{ID: 3, Source: "doc-c"}, citations[2])
}

func TestApplyReplan_FinishWins(t *testing.T) {
	run := runState("task", 10)
	applyReplan(run, &datatypes.ReplanDecision{
		ShouldFinish:           true,
		NeedsExternalKnowledge: true,
		ExternalQueries:        []string{"should be dropped"},
		InternalQueries:        []string{"kept"},
	})

	assert.True(t, run.Exploration.ShouldFinishEarly)
	assert.False(t, run.Exploration.NeedsExternalKnowledge)
	assert.Empty(t, run.Exploration.ExternalQueries)
	assert.Equal(t, []string{"kept"}, run.Exploration.InternalQueries)
}

// =============================================================================
// Run Loop Tests
// =============================================================================

func TestRun_CompletedHappyPath(t *testing.T) {
	search := &mockTool{
		name: tools.NameSemanticSearch,
		result: &tools.Result{
			Content: "found",
			Sources: []string{"internal/doc.md"},
			Chunks: []datatypes.EvidenceChunk{
				{DocumentID: "doc", ChunkIndex: 0, Text: "evidence"},
			},
		},
	}
	o := &mockOracle{
		classification: &datatypes.TaskClassification{
			TaskType:        "factual_question",
			IntentSummary:   "answer it",
			InternalQueries: []string{"q1", "q2"},
		},
		structuring:    &datatypes.StructuringResult{StructuredKnowledge: json.RawMessage(`{"k":"v"}`)},
		replanDecision: &datatypes.ReplanDecision{ShouldFinish: true, Reason: "enough"},
		answer:         "the answer [1]",
	}
	e, _ := newTestEngine(o, search)

	run := runState("what is it", 10)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.Equal(t, "the answer [1]", run.FinalAnswer)
	assert.Equal(t, 2, search.calls)
	require.Len(t, run.Citations, 1)
	assert.Equal(t, "internal/doc.md", run.Citations[0].Source)
	assert.NotNil(t, run.CompletedAt)
	assert.True(t, o.called("synthesize"))
}

func TestRun_BudgetExhaustion(t *testing.T) {
	search := &mockTool{name: tools.NameSemanticSearch}
	o := &mockOracle{
		classification: &datatypes.TaskClassification{
			TaskType:        "open_research",
			InternalQueries: []string{"q1", "q2", "q3", "q4", "q5"},
		},
	}
	e, _ := newTestEngine(o, search)

	run := runState("broad question", 2)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusMaxStepsReached, run.Status)
	assert.Len(t, run.Steps, 2)
	assert.NotEmpty(t, run.FinalAnswer)
	assert.False(t, o.called("structure_knowledge"), "budget ended the run mid-phase")
}

func TestRun_StepCountNeverExceedsBudget(t *testing.T) {
	search := &mockTool{name: tools.NameSemanticSearch}
	o := &mockOracle{
		classification: &datatypes.TaskClassification{
			InternalQueries: []string{"a", "b", "c", "d", "e", "f"},
		},
	}
	e, s := newTestEngine(o, search)

	run := runState("task", 3)
	e.run(context.Background(), run)

	// Every persisted snapshot respected the budget, not just the final one.
	stored, err := s.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(stored.Steps), 3)
	assert.LessOrEqual(t, len(run.Steps), 3)
}

func TestRun_OracleFailureMarksRunFailed(t *testing.T) {
	o := &mockOracle{classifyErr: errors.New("backend unreachable")}
	e, _ := newTestEngine(o)

	run := runState("task", 5)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.FinalAnswer, "failed runs still carry a user-visible answer")
	assert.Contains(t, run.Error, "backend unreachable")
}

func TestRun_ExternalSkipWhenNotNeeded(t *testing.T) {
	search := &mockTool{name: tools.NameSemanticSearch}
	webSearch := &mockTool{name: tools.NameWebSearch}
	o := &mockOracle{
		classification: &datatypes.TaskClassification{
			InternalQueries:        []string{"q1", "q2"},
			NeedsExternalKnowledge: false,
		},
		structuring:    &datatypes.StructuringResult{NeedsExternalKnowledge: false},
		replanDecision: &datatypes.ReplanDecision{ShouldFinish: false},
		answer:         "done",
	}
	e, _ := newTestEngine(o, search, webSearch)

	run := runState("task", 10)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.Zero(t, webSearch.calls)
	assert.Empty(t, run.Exploration.ExternalFindings)
}

func TestRun_ExternalPhaseBoundedBreadth(t *testing.T) {
	hits := make([]tools.SearchHit, 3)
	for i := range hits {
		hits[i] = tools.SearchHit{URL: fmt.Sprintf("https://example.com/%d", i)}
	}
	links := []string{
		"https://example.com/l1", "https://example.com/l2",
		"https://example.com/l3", "https://example.com/l4",
	}
	search := &mockTool{name: tools.NameSemanticSearch}
	webSearch := &mockTool{
		name:   tools.NameWebSearch,
		result: &tools.Result{Content: "results", Hits: hits},
	}
	webExtract := &mockTool{
		name:   tools.NameWebExtract,
		result: &tools.Result{Content: "page text", Links: links},
	}
	o := &mockOracle{
		classification: &datatypes.TaskClassification{
			InternalQueries:        []string{"internal"},
			ExternalQueries:        []string{"external"},
			NeedsExternalKnowledge: true,
		},
		structuring:    &datatypes.StructuringResult{},
		replanDecision: &datatypes.ReplanDecision{ShouldFinish: false, NeedsExternalKnowledge: true, ExternalQueries: []string{"external"}},
		answer:         "done",
	}
	e, _ := newTestEngine(o, search, webSearch, webExtract)

	run := runState("task", 50)
	e.run(context.Background(), run)

	require.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, webSearch.calls)
	// Top 2 results extracted, each following 3 of the 4 links once.
	assert.Equal(t, 2+2*maxLinksPerPage, webExtract.calls)

	kinds := map[string]int{}
	for _, f := range run.Exploration.ExternalFindings {
		kinds[f.Kind]++
	}
	assert.Equal(t, 1, kinds["search"])
	assert.Equal(t, 2, kinds["page"])
	assert.Equal(t, 6, kinds["linked_page"])
}

func TestRun_ToolFailureDegradesWithoutAborting(t *testing.T) {
	search := &mockTool{
		name:   tools.NameSemanticSearch,
		result: tools.FailureResult(tools.NameSemanticSearch, errors.New("weaviate down")),
	}
	o := &mockOracle{
		classification: &datatypes.TaskClassification{InternalQueries: []string{"q1", "q2"}},
		answer:         "best effort answer",
	}
	e, _ := newTestEngine(o, search)

	run := runState("task", 10)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	require.NotEmpty(t, run.Steps)
	assert.Contains(t, run.Steps[0].Output, "weaviate down")
}

// =============================================================================
// Drive Fast Path Tests
// =============================================================================

func TestDriveFastPath_ListWithoutSummaryReturnsRawListing(t *testing.T) {
	listing := &tools.Result{
		Content: "1. report.pdf\n2. notes.txt\n",
		Files: []tools.DriveFile{
			{ID: "f1", Name: "report.pdf"},
			{ID: "f2", Name: "notes.txt"},
		},
	}
	driveList := &mockTool{name: tools.NameDriveList, result: listing}
	o := &mockOracle{
		driveIntent: &datatypes.DriveIntent{Intent: datatypes.DriveIntentList, Summarize: false},
	}
	e, _ := newTestEngine(o, driveList)

	run := runState("list my files", 10)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.Equal(t, listing.Content, run.FinalAnswer)
	assert.False(t, o.called("classify_task"), "fast path bypasses the phase sequence")
	assert.False(t, o.called("structure_knowledge"))
	assert.False(t, o.called("synthesize_documents"), "raw listing needs no synthesis")
}

func TestDriveFastPath_FetchNoMatchesYieldsFixedAnswer(t *testing.T) {
	driveList := &mockTool{
		name:   tools.NameDriveList,
		result: &tools.Result{Content: "no Drive files matched"},
	}
	driveFetch := &mockTool{name: tools.NameDriveFetch}
	o := &mockOracle{
		driveIntent: &datatypes.DriveIntent{Intent: datatypes.DriveIntentFetch, Query: "missing file"},
	}
	e, _ := newTestEngine(o, driveList, driveFetch)

	run := runState("summarize missing file", 10)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.Equal(t, NoDriveFilesAnswer, run.FinalAnswer)
	assert.Zero(t, driveFetch.calls)
}

func TestDriveFastPath_FetchSynthesizesFromDocuments(t *testing.T) {
	driveFetch := &mockTool{
		name: tools.NameDriveFetch,
		result: &tools.Result{
			Content: "file body",
			Files:   []tools.DriveFile{{ID: "f1", Name: "report.pdf", Text: "file body"}},
		},
	}
	driveList := &mockTool{name: tools.NameDriveList}
	o := &mockOracle{
		driveIntent: &datatypes.DriveIntent{Intent: datatypes.DriveIntentFetch, FileIDs: []string{"f1"}},
		driveAnswer: "summary of the report",
	}
	e, _ := newTestEngine(o, driveList, driveFetch)

	run := runState("summarize report.pdf", 10)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.Equal(t, "summary of the report", run.FinalAnswer)
	assert.Equal(t, 1, driveFetch.calls)
	assert.True(t, o.called("synthesize_documents"))
}

func TestDriveFastPath_IntentErrorFallsThroughToPhases(t *testing.T) {
	o := &mockOracle{
		driveErr:       errors.New("unparseable"),
		classification: &datatypes.TaskClassification{InternalQueries: []string{"q"}},
		answer:         "phased answer",
	}
	search := &mockTool{name: tools.NameSemanticSearch}
	e, _ := newTestEngine(o, search)

	run := runState("task", 10)
	e.run(context.Background(), run)

	assert.Equal(t, datatypes.RunStatusCompleted, run.Status)
	assert.True(t, o.called("classify_task"))
	assert.Equal(t, "phased answer", run.FinalAnswer)
}

// =============================================================================
// Execute Tests
// =============================================================================

func TestExecute_ReturnsImmediatelyAndPersists(t *testing.T) {
	o := &mockOracle{
		classification: &datatypes.TaskClassification{InternalQueries: []string{"q"}},
		answer:         "done",
	}
	e, s := newTestEngine(o, &mockTool{name: tools.NameSemanticSearch})

	runID, err := e.Execute(context.Background(), "a task", datatypes.RunConfig{MaxSteps: 5})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	assert.Eventually(t, func() bool {
		run, err := s.Get(context.Background(), runID)
		return err == nil && run.Terminal()
	}, waitFor, tick, "run should reach a terminal state")
}

func TestExecute_RejectsInvalidConfig(t *testing.T) {
	o := &mockOracle{}
	e, _ := newTestEngine(o)

	_, err := e.Execute(context.Background(), "task", datatypes.RunConfig{MaxSteps: 500})
	assert.Error(t, err)
}
