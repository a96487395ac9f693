// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the shared data model for the research service.
//
// The central aggregate is RunState: one record per research run, owned
// exclusively by the engine goroutine driving that run and persisted to the
// run store after every mutation. Everything else in this package is either
// a component of RunState or a decision payload exchanged with the oracle.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a research run. Transitions are
// monotonic: once a run leaves RunStatusRunning it never changes again.
type RunStatus string

const (
	RunStatusRunning         RunStatus = "running"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusFailed          RunStatus = "failed"
	RunStatusMaxStepsReached RunStatus = "max_steps_reached"
)

// RunPhase identifies the current stage of the phase sequence. A run's phase
// only ever moves forward; replanning may add queries but never rewinds it.
type RunPhase string

const (
	PhaseUnderstanding     RunPhase = "understanding"
	PhaseInternalKnowledge RunPhase = "internal_knowledge"
	PhaseStructuring       RunPhase = "structuring"
	PhaseExternalKnowledge RunPhase = "external_knowledge"
	PhaseReasoningAnswer   RunPhase = "reasoning_answer"
)

var runConfigValidator = validator.New()

// RunConfig carries the per-run execution limits and capability switches.
type RunConfig struct {
	// MaxSteps is the hard ceiling on tool invocations for the run.
	MaxSteps int `json:"max_steps" yaml:"max_steps" validate:"gt=0,lte=100"`

	// Temperature is forwarded to every oracle call for this run.
	Temperature float32 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`

	// EnabledTools lists the tool names the run may invoke. An empty list
	// means every registered tool is allowed.
	EnabledTools []string `json:"enabled_tools" yaml:"enabled_tools"`
}

// DefaultMaxSteps bounds runs whose caller did not configure a ceiling.
const DefaultMaxSteps = 12

// EnsureDefaults fills zero-valued fields with service defaults.
func (c *RunConfig) EnsureDefaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
}

// Validate checks the config against its declared constraints.
func (c *RunConfig) Validate() error {
	if err := runConfigValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	return nil
}

// ToolEnabled reports whether the named tool may be invoked under this
// config. An empty EnabledTools list enables everything.
func (c *RunConfig) ToolEnabled(name string) bool {
	if len(c.EnabledTools) == 0 {
		return true
	}
	for _, t := range c.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

// Step records a single tool invocation. Steps are append-only and their
// count never exceeds RunConfig.MaxSteps.
type Step struct {
	Index     int           `json:"index"`
	Tool      string        `json:"tool"`
	Input     string        `json:"input"`
	Rationale string        `json:"rationale"`
	Output    string        `json:"output"`
	Sources   []string      `json:"sources,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// EvidenceChunk is one fragment of internal knowledge retrieved by the
// semantic-search tool, tied to a source document and position.
type EvidenceChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Distance   float64 `json:"distance,omitempty"`
}

// dedupKeyPrefixLen is how much chunk text participates in the dedup key.
const dedupKeyPrefixLen = 120

// DedupKey identifies a chunk for deduplication purposes. Two chunks with
// the same document, index, and text prefix are considered the same
// evidence regardless of retrieval score.
func (c EvidenceChunk) DedupKey() string {
	prefix := c.Text
	if len(prefix) > dedupKeyPrefixLen {
		prefix = prefix[:dedupKeyPrefixLen]
	}
	return fmt.Sprintf("%s|%d|%s", c.DocumentID, c.ChunkIndex, prefix)
}

// ExternalFinding is one unit of external knowledge: a search-result batch,
// an extracted page, or a page reached by following a hub link.
type ExternalFinding struct {
	Query   string `json:"query"`
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Kind    string `json:"kind"` // "search", "page", or "linked_page"
}

// ExplorationState accumulates everything the phases learn about the task.
// It is mutated only at phase boundaries by the engine.
type ExplorationState struct {
	TaskType               string            `json:"task_type,omitempty"`
	IntentSummary          string            `json:"intent_summary,omitempty"`
	InternalQueries        []string          `json:"internal_queries,omitempty"`
	ExternalQueries        []string          `json:"external_queries,omitempty"`
	NeedsExternalKnowledge bool              `json:"needs_external_knowledge"`
	ShouldFinishEarly      bool              `json:"should_finish_early"`
	InternalChunks         []EvidenceChunk   `json:"internal_chunks,omitempty"`
	StructuredKnowledge    RawDecision       `json:"structured_knowledge,omitempty"`
	ExternalFindings       []ExternalFinding `json:"external_findings,omitempty"`
	DecisionLog            []string          `json:"decision_log,omitempty"`
}

// Citation is one entry in the final answer's source list. IDs are
// sequential, 1-based, and assigned on first occurrence of a source.
type Citation struct {
	ID     int    `json:"id"`
	Source string `json:"source"`
}

// RunPlan is the display-only plan produced during Understanding. It is
// never used for control flow.
type RunPlan struct {
	Overview string   `json:"overview,omitempty"`
	Steps    []string `json:"steps,omitempty"`
}

// RunState is the single mutable aggregate for one research run.
//
// Ownership discipline: exactly one engine goroutine mutates a RunState for
// the lifetime of its run, persisting it to the run store after every
// change. Once Status leaves RunStatusRunning the record is read-only; the
// follow-up path may quote FinalAnswer but never writes back.
type RunState struct {
	ID          string           `json:"id"`
	Task        string           `json:"task"`
	Status      RunStatus        `json:"status"`
	Phase       RunPhase         `json:"phase"`
	Plan        RunPlan          `json:"plan"`
	Steps       []Step           `json:"steps,omitempty"`
	Exploration ExplorationState `json:"exploration"`
	FinalAnswer string           `json:"final_answer,omitempty"`
	Citations   []Citation       `json:"citations,omitempty"`
	Config      RunConfig        `json:"config"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// NewRunState creates a running RunState for the given task. The config is
// defaulted but not validated; callers validate before starting a run.
func NewRunState(task string, cfg RunConfig) *RunState {
	cfg.EnsureDefaults()
	return &RunState{
		ID:        uuid.New().String(),
		Task:      task,
		Status:    RunStatusRunning,
		Phase:     PhaseUnderstanding,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the run has reached a final status.
func (r *RunState) Terminal() bool {
	return r.Status != RunStatusRunning
}

// LogDecision appends one human-readable line to the exploration decision
// log, prefixed with the phase that produced it.
func (r *RunState) LogDecision(phase RunPhase, format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", phase, fmt.Sprintf(format, args...))
	r.Exploration.DecisionLog = append(r.Exploration.DecisionLog, line)
}

// AppendStep records a completed tool invocation and returns its index.
func (r *RunState) AppendStep(tool, input, rationale, output string, sources []string, dur time.Duration) int {
	step := Step{
		Index:     len(r.Steps),
		Tool:      tool,
		Input:     input,
		Rationale: rationale,
		Output:    output,
		Sources:   sources,
		Timestamp: time.Now().UTC(),
		Duration:  dur,
	}
	r.Steps = append(r.Steps, step)
	return step.Index
}
