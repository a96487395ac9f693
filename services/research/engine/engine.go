// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives research runs through their phase sequence.
//
// One Engine serves the whole process; each accepted run executes on its
// own goroutine and owns its RunState exclusively until the run is
// terminal. Phases are plain methods over *RunState so each transition
// can be unit-tested against a constructed snapshot.
//
// The phase order is fixed: understanding, internal knowledge,
// structuring (which consults the replanner), conditional external
// knowledge, final reasoning. A Drive fast path may claim the run before
// any phase executes. Every tool call passes the step budget check;
// exhaustion terminates the run as max_steps_reached rather than erroring.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/research/observability"
	"github.com/AleutianAI/AleutianResearch/services/research/oracle"
	"github.com/AleutianAI/AleutianResearch/services/research/store"
	"github.com/AleutianAI/AleutianResearch/services/research/tools"
)

var tracer = otel.Tracer("aleutian.research.engine")

// ErrBudgetExhausted signals that the run has consumed every allowed tool
// invocation. It flows up from invokeTool through the active phase; the
// run loop turns it into a max_steps_reached termination, never a failure.
var ErrBudgetExhausted = errors.New("step budget exhausted")

// Engine executes research runs against an injected oracle, tool
// registry, and run store.
type Engine struct {
	oracle  oracle.Oracle
	tools   *tools.Registry
	store   store.RunStore
	metrics *observability.ResearchMetrics
}

// NewEngine wires an Engine. The metrics handle may be nil (tests).
func NewEngine(o oracle.Oracle, registry *tools.Registry, runStore store.RunStore, metrics *observability.ResearchMetrics) *Engine {
	return &Engine{
		oracle:  o,
		tools:   registry,
		store:   runStore,
		metrics: metrics,
	}
}

// Execute accepts a task, persists the initial RunState, and starts the
// run on its own goroutine. It returns the run ID immediately; callers
// observe progress through the run store.
func (e *Engine) Execute(ctx context.Context, task string, cfg datatypes.RunConfig) (string, error) {
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	run := datatypes.NewRunState(task, cfg)
	if err := e.store.Set(ctx, run); err != nil {
		return "", fmt.Errorf("failed to persist the new run: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RunsStartedTotal.Inc()
		e.metrics.ActiveRuns.Inc()
	}
	slog.Info("Starting research run", "run_id", run.ID, "max_steps", cfg.MaxSteps)

	// The run outlives the request that started it.
	go e.run(context.WithoutCancel(ctx), run)

	return run.ID, nil
}

// run drives one research run to a terminal state. It never returns a
// non-terminal RunState to the store.
func (e *Engine) run(ctx context.Context, run *datatypes.RunState) {
	ctx, span := tracer.Start(ctx, "Engine.run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", run.ID))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Research run panicked", "run_id", run.ID, "panic", r)
			e.finalizeFailed(ctx, run, fmt.Errorf("internal error: %v", r))
		}
	}()

	claimed, err := e.driveFastPath(ctx, run)
	if claimed {
		e.finishFastPath(ctx, run, err)
		return
	}

	phases := []struct {
		phase datatypes.RunPhase
		fn    func(context.Context, *datatypes.RunState) error
	}{
		{datatypes.PhaseUnderstanding, e.phaseUnderstanding},
		{datatypes.PhaseInternalKnowledge, e.phaseInternalKnowledge},
		{datatypes.PhaseStructuring, e.phaseStructuring},
		{datatypes.PhaseExternalKnowledge, e.phaseExternalKnowledge},
		{datatypes.PhaseReasoningAnswer, e.phaseFinalReasoning},
	}

	for _, p := range phases {
		run.Phase = p.phase
		e.persist(ctx, run)

		start := time.Now()
		err := p.fn(ctx, run)
		if e.metrics != nil {
			e.metrics.PhaseDurationSeconds.
				WithLabelValues(string(p.phase)).
				Observe(time.Since(start).Seconds())
		}

		if errors.Is(err, ErrBudgetExhausted) {
			e.finalizeMaxSteps(ctx, run)
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(p.phase)+" failed")
			e.finalizeFailed(ctx, run, err)
			return
		}
	}

	e.finalizeCompleted(ctx, run)
}

// finishFastPath terminates a run the Drive fast path claimed.
func (e *Engine) finishFastPath(ctx context.Context, run *datatypes.RunState, err error) {
	switch {
	case errors.Is(err, ErrBudgetExhausted):
		e.finalizeMaxSteps(ctx, run)
	case err != nil:
		e.finalizeFailed(ctx, run, err)
	default:
		e.finalizeCompleted(ctx, run)
	}
}

// =============================================================================
// Step Budget and Tool Invocation
// =============================================================================

// budgetRemaining is the StepBudgetGuard check. Every tool call goes
// through invokeTool, which consults this before executing.
func budgetRemaining(run *datatypes.RunState) bool {
	return len(run.Steps) < run.Config.MaxSteps
}

// invokeTool runs one tool call under the step budget and records it as a
// step. Tool errors never propagate: they are folded into a degraded
// Result so the run keeps going. The only error this returns is
// ErrBudgetExhausted.
func (e *Engine) invokeTool(ctx context.Context, run *datatypes.RunState, toolName, input, rationale string) (*tools.Result, error) {
	if !budgetRemaining(run) {
		run.LogDecision(run.Phase, "step budget exhausted before %s(%q)", toolName, input)
		return nil, ErrBudgetExhausted
	}

	ctx, span := tracer.Start(ctx, "Engine.invokeTool")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool", toolName),
		attribute.String("input", input),
		attribute.Int("step", len(run.Steps)),
	)

	var result *tools.Result
	start := time.Now()
	tool, err := e.tools.Get(toolName)
	if err != nil {
		result = tools.FailureResult(toolName, err)
	} else {
		var execErr error
		result, execErr = tool.Execute(ctx, input)
		if execErr != nil || result == nil {
			if execErr == nil {
				execErr = errors.New("tool returned no result")
			}
			result = tools.FailureResult(toolName, execErr)
		}
	}
	duration := time.Since(start)

	outcome := "ok"
	if result.Metadata["failed"] == "true" {
		outcome = "degraded"
		span.SetStatus(codes.Error, "tool degraded")
	}
	if e.metrics != nil {
		e.metrics.ToolCallsTotal.WithLabelValues(toolName, outcome).Inc()
	}

	index := run.AppendStep(toolName, input, rationale, result.Content, result.Sources, duration)
	slog.Debug("Recorded tool step",
		"run_id", run.ID, "step", index, "tool", toolName, "outcome", outcome)
	e.persist(ctx, run)

	return result, nil
}

// =============================================================================
// Termination
// =============================================================================

func (e *Engine) finalizeCompleted(ctx context.Context, run *datatypes.RunState) {
	if run.FinalAnswer == "" {
		run.FinalAnswer = "The run completed without producing an answer."
	}
	e.terminate(ctx, run, datatypes.RunStatusCompleted)
}

func (e *Engine) finalizeMaxSteps(ctx context.Context, run *datatypes.RunState) {
	if run.FinalAnswer == "" {
		run.FinalAnswer = fmt.Sprintf(
			"The run reached its limit of %d tool invocations before finishing. "+
				"The evidence gathered so far is preserved in the run's step log.",
			run.Config.MaxSteps)
	}
	e.terminate(ctx, run, datatypes.RunStatusMaxStepsReached)
}

func (e *Engine) finalizeFailed(ctx context.Context, run *datatypes.RunState, err error) {
	run.Error = err.Error()
	if run.FinalAnswer == "" {
		run.FinalAnswer = fmt.Sprintf("The research run failed: %v", err)
	}
	slog.Error("Research run failed", "run_id", run.ID, "error", err)
	e.terminate(ctx, run, datatypes.RunStatusFailed)
}

// terminate moves the run to its terminal status exactly once and
// persists the final state. Citations are derived here if a phase has not
// already collected them, so every terminal run carries its source list.
func (e *Engine) terminate(ctx context.Context, run *datatypes.RunState, status datatypes.RunStatus) {
	if run.Terminal() {
		return
	}
	if len(run.Citations) == 0 {
		run.Citations = collectCitations(run.Steps)
	}
	run.Status = status
	now := time.Now().UTC()
	run.CompletedAt = &now

	if e.metrics != nil {
		e.metrics.ActiveRuns.Dec()
		e.metrics.RunsTerminatedTotal.WithLabelValues(string(status)).Inc()
		e.metrics.StepsPerRun.Observe(float64(len(run.Steps)))
	}
	slog.Info("Research run terminal",
		"run_id", run.ID, "status", status, "steps", len(run.Steps))
	e.persist(ctx, run)
}

// persist writes the run snapshot. A store failure is logged, not fatal:
// the run's in-memory state is still authoritative and the next snapshot
// will retry.
func (e *Engine) persist(ctx context.Context, run *datatypes.RunState) {
	if err := e.store.Set(ctx, run); err != nil {
		slog.Warn("Failed to persist run snapshot", "run_id", run.ID, "error", err)
	}
}
