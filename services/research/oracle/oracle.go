// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle turns an LLM backend into a typed decision maker for the
// research engine. Every method builds one prompt, makes one Generate call,
// and parses exactly one JSON object out of the reply. A reply the parser
// cannot make sense of is reported as ErrUnparseable; there is no retry or
// repair loop here, that is the engine's problem.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

var tracer = otel.Tracer("aleutian.research.oracle")

// ErrUnparseable indicates the LLM reply contained no usable JSON decision.
var ErrUnparseable = errors.New("oracle reply is unparseable")

// DecisionError wraps a failed oracle decision with enough context to log
// and to store on the run. It always unwraps to either ErrUnparseable or
// the underlying LLM transport error.
type DecisionError struct {
	Decision string // which decision variant was being made
	Raw      string // the raw LLM reply, possibly truncated
	Err      error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("oracle decision %q failed: %v", e.Decision, e.Err)
}

func (e *DecisionError) Unwrap() error {
	return e.Err
}

// IsUnparseable reports whether err means the LLM answered but the answer
// could not be parsed into the expected decision shape.
func IsUnparseable(err error) bool {
	return errors.Is(err, ErrUnparseable)
}

// Oracle is the decision surface the engine consumes. One method per
// decision variant keeps the engine free of prompt or parsing concerns
// and lets tests substitute scripted decisions.
type Oracle interface {
	// ClassifyTask produces the Understanding-phase decision for the run's task.
	ClassifyTask(ctx context.Context, run *datatypes.RunState) (*datatypes.TaskClassification, error)

	// ClassifyDriveIntent decides whether the task is a Drive-repository
	// request that should bypass the phase sequence.
	ClassifyDriveIntent(ctx context.Context, run *datatypes.RunState) (*datatypes.DriveIntent, error)

	// StructureKnowledge organizes the collected internal evidence and
	// reports remaining gaps.
	StructureKnowledge(ctx context.Context, run *datatypes.RunState) (*datatypes.StructuringResult, error)

	// Replan reviews progress after structuring and decides between
	// finishing early and another round of queries.
	Replan(ctx context.Context, run *datatypes.RunState) (*datatypes.ReplanDecision, error)

	// Synthesize produces the final answer text from everything the run
	// has gathered. The reply is free text, not JSON.
	Synthesize(ctx context.Context, run *datatypes.RunState) (string, error)

	// SynthesizeFromDocuments produces a fast-path answer over fetched
	// Drive documents, without a phase sequence behind it.
	SynthesizeFromDocuments(ctx context.Context, task string, docs []datatypes.DriveDocument) (string, error)

	// AnswerFollowup answers a follow-up question using a finished run's
	// final answer as the only context.
	AnswerFollowup(ctx context.Context, priorAnswer, question string) (string, error)
}

// LLMOracle is the production Oracle backed by an llm.LLMClient.
type LLMOracle struct {
	client llm.LLMClient
}

// NewLLMOracle creates an LLMOracle over the given backend client.
// The client must not be nil.
func NewLLMOracle(client llm.LLMClient) *LLMOracle {
	return &LLMOracle{client: client}
}

// =============================================================================
// Decision Methods
// =============================================================================

func (o *LLMOracle) ClassifyTask(ctx context.Context, run *datatypes.RunState) (*datatypes.TaskClassification, error) {
	return decide[datatypes.TaskClassification](ctx, o, "classify_task",
		buildClassifyTaskPrompt(run.Task), run.Config.Temperature)
}

func (o *LLMOracle) ClassifyDriveIntent(ctx context.Context, run *datatypes.RunState) (*datatypes.DriveIntent, error) {
	return decide[datatypes.DriveIntent](ctx, o, "classify_drive_intent",
		buildDriveIntentPrompt(run.Task), run.Config.Temperature)
}

func (o *LLMOracle) StructureKnowledge(ctx context.Context, run *datatypes.RunState) (*datatypes.StructuringResult, error) {
	return decide[datatypes.StructuringResult](ctx, o, "structure_knowledge",
		buildStructuringPrompt(run), run.Config.Temperature)
}

func (o *LLMOracle) Replan(ctx context.Context, run *datatypes.RunState) (*datatypes.ReplanDecision, error) {
	return decide[datatypes.ReplanDecision](ctx, o, "replan",
		buildReplanPrompt(run), run.Config.Temperature)
}

func (o *LLMOracle) Synthesize(ctx context.Context, run *datatypes.RunState) (string, error) {
	return o.generateText(ctx, "synthesize", buildSynthesisPrompt(run), run.Config.Temperature)
}

func (o *LLMOracle) SynthesizeFromDocuments(ctx context.Context, task string, docs []datatypes.DriveDocument) (string, error) {
	return o.generateText(ctx, "synthesize_documents", buildDocumentSynthesisPrompt(task, docs), 0)
}

func (o *LLMOracle) AnswerFollowup(ctx context.Context, priorAnswer, question string) (string, error) {
	return o.generateText(ctx, "followup", buildFollowupPrompt(priorAnswer, question), 0)
}

// =============================================================================
// Generation and Parsing
// =============================================================================

// decide makes one LLM call and parses the reply into the decision type T.
func decide[T any](ctx context.Context, o *LLMOracle, decision, prompt string, temperature float32) (*T, error) {
	raw, err := o.generateText(ctx, decision, prompt, temperature)
	if err != nil {
		return nil, err
	}

	payload, ok := extractJSON(raw)
	if !ok {
		slog.Warn("Oracle reply contained no JSON object", "decision", decision)
		return nil, &DecisionError{Decision: decision, Raw: truncate(raw, 500), Err: ErrUnparseable}
	}

	var out T
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		slog.Warn("Oracle reply JSON did not match decision shape",
			"decision", decision, "error", err)
		return nil, &DecisionError{
			Decision: decision,
			Raw:      truncate(raw, 500),
			Err:      fmt.Errorf("%w: %v", ErrUnparseable, err),
		}
	}
	return &out, nil
}

func (o *LLMOracle) generateText(ctx context.Context, decision, prompt string, temperature float32) (string, error) {
	ctx, span := tracer.Start(ctx, "LLMOracle."+decision)
	defer span.End()
	span.SetAttributes(
		attribute.String("oracle.decision", decision),
		attribute.Int("oracle.prompt_chars", len(prompt)),
	)

	params := llm.GenerationParams{}
	if temperature > 0 {
		params.Temperature = &temperature
	}

	raw, err := o.client.Generate(ctx, prompt, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "LLM call failed")
		return "", &DecisionError{Decision: decision, Err: err}
	}
	span.SetAttributes(attribute.Int("oracle.reply_chars", len(raw)))
	return raw, nil
}

// extractJSON pulls the first balanced JSON object out of raw. LLMs wrap
// JSON in prose and markdown fences; this scans for the first '{' and
// tracks brace depth, respecting string literals and escapes.
func extractJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// nothing, structural characters inside strings do not count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
