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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/research/tools"
)

// Bounded-breadth constants for the External Knowledge phase. These are
// deliberate hard limits, not configuration: widening them changes how
// fast the step budget drains and must be re-derived, not tuned.
const (
	maxExternalQueries  = 4
	topResultsToExtract = 2
	maxLinksPerPage     = 3
)

// phaseUnderstanding classifies the task and seeds the query sets.
func (e *Engine) phaseUnderstanding(ctx context.Context, run *datatypes.RunState) error {
	ctx, span := tracer.Start(ctx, "Engine.phaseUnderstanding")
	defer span.End()

	classification, err := e.oracle.ClassifyTask(ctx, run)
	if err != nil {
		return fmt.Errorf("understanding phase: %w", err)
	}

	exp := &run.Exploration
	exp.TaskType = classification.TaskType
	exp.IntentSummary = classification.IntentSummary
	exp.InternalQueries = normalizeQueries(classification.InternalQueries, run.Task)
	exp.ExternalQueries = normalizeQueries(classification.ExternalQueries, "")
	exp.NeedsExternalKnowledge = classification.NeedsExternalKnowledge

	run.Plan = datatypes.RunPlan{
		Overview: classification.PlanOverview,
		Steps:    classification.PlanSteps,
	}

	run.LogDecision(datatypes.PhaseUnderstanding,
		"classified as %q: %s (internal=%d external=%d needs_external=%v)",
		exp.TaskType, exp.IntentSummary,
		len(exp.InternalQueries), len(exp.ExternalQueries), exp.NeedsExternalKnowledge)
	return nil
}

// phaseInternalKnowledge gathers evidence from the internal document
// store, one expanded query at a time.
func (e *Engine) phaseInternalKnowledge(ctx context.Context, run *datatypes.RunState) error {
	ctx, span := tracer.Start(ctx, "Engine.phaseInternalKnowledge")
	defer span.End()

	if !run.Config.ToolEnabled(tools.NameSemanticSearch) {
		run.LogDecision(datatypes.PhaseInternalKnowledge, "semantic search disabled, skipping")
		return nil
	}

	exp := &run.Exploration
	exp.InternalQueries = expandInternalQueries(exp.InternalQueries, run.Task, exp.TaskType)
	run.LogDecision(datatypes.PhaseInternalKnowledge,
		"querying internal store with %d queries", len(exp.InternalQueries))

	for _, query := range exp.InternalQueries {
		result, err := e.invokeTool(ctx, run, tools.NameSemanticSearch, query,
			"gather internal evidence for: "+query)
		if err != nil {
			return err
		}
		before := len(exp.InternalChunks)
		exp.InternalChunks = mergeChunks(exp.InternalChunks, result.Chunks)
		run.LogDecision(datatypes.PhaseInternalKnowledge,
			"query %q returned %d chunks, %d new after dedup",
			query, len(result.Chunks), len(exp.InternalChunks)-before)
	}
	return nil
}

// phaseStructuring organizes the evidence and immediately consults the
// replanner on whether to keep exploring.
func (e *Engine) phaseStructuring(ctx context.Context, run *datatypes.RunState) error {
	ctx, span := tracer.Start(ctx, "Engine.phaseStructuring")
	defer span.End()

	structured, err := e.oracle.StructureKnowledge(ctx, run)
	if err != nil {
		return fmt.Errorf("structuring phase: %w", err)
	}

	exp := &run.Exploration
	exp.StructuredKnowledge = structured.StructuredKnowledge
	// External need is only ever added here, never retracted.
	exp.NeedsExternalKnowledge = exp.NeedsExternalKnowledge || structured.NeedsExternalKnowledge
	run.LogDecision(datatypes.PhaseStructuring,
		"structured %d chunks, %d gaps remain, needs_external=%v",
		len(exp.InternalChunks), len(structured.Gaps), exp.NeedsExternalKnowledge)

	return e.replan(ctx, run)
}

// phaseExternalKnowledge explores the web with bounded breadth: each
// query gets one search, the top results get extracted, and each
// extracted page gets one level of outbound-link follow-up.
func (e *Engine) phaseExternalKnowledge(ctx context.Context, run *datatypes.RunState) error {
	ctx, span := tracer.Start(ctx, "Engine.phaseExternalKnowledge")
	defer span.End()

	exp := &run.Exploration
	switch {
	case exp.ShouldFinishEarly:
		run.LogDecision(datatypes.PhaseExternalKnowledge, "replanner chose to finish, skipping")
		return nil
	case !exp.NeedsExternalKnowledge:
		run.LogDecision(datatypes.PhaseExternalKnowledge, "no external knowledge needed, skipping")
		return nil
	case !run.Config.ToolEnabled(tools.NameWebSearch):
		run.LogDecision(datatypes.PhaseExternalKnowledge, "web search disabled, skipping")
		return nil
	}

	queries := exp.ExternalQueries
	if len(queries) > maxExternalQueries {
		queries = queries[:maxExternalQueries]
	}

	for _, query := range queries {
		searchResult, err := e.invokeTool(ctx, run, tools.NameWebSearch, query,
			"search the web for: "+query)
		if err != nil {
			return err
		}
		exp.ExternalFindings = append(exp.ExternalFindings, datatypes.ExternalFinding{
			Query:   query,
			Content: searchResult.Content,
			Kind:    "search",
		})

		if !run.Config.ToolEnabled(tools.NameWebExtract) {
			continue
		}

		hits := searchResult.Hits
		if len(hits) > topResultsToExtract {
			hits = hits[:topResultsToExtract]
		}
		for _, hit := range hits {
			if err := e.extractPage(ctx, run, query, hit.URL, hit.Title, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// extractPage records one page extraction as a finding. When followLinks
// is set, up to maxLinksPerPage outbound links get one more extraction
// each; those calls never follow links again (single hop).
func (e *Engine) extractPage(ctx context.Context, run *datatypes.RunState, query, pageURL, title string, followLinks bool) error {
	result, err := e.invokeTool(ctx, run, tools.NameWebExtract, pageURL,
		"extract the content of "+pageURL)
	if err != nil {
		return err
	}

	kind := "linked_page"
	if followLinks {
		kind = "page"
	}
	if title == "" {
		title = result.Metadata["title"]
	}
	run.Exploration.ExternalFindings = append(run.Exploration.ExternalFindings, datatypes.ExternalFinding{
		Query:   query,
		URL:     pageURL,
		Title:   title,
		Content: result.Content,
		Kind:    kind,
	})

	if !followLinks {
		return nil
	}
	links := result.Links
	if len(links) > maxLinksPerPage {
		links = links[:maxLinksPerPage]
	}
	for _, link := range links {
		if err := e.extractPage(ctx, run, query, link, "", false); err != nil {
			return err
		}
	}
	return nil
}

// phaseFinalReasoning synthesizes the answer from everything gathered.
func (e *Engine) phaseFinalReasoning(ctx context.Context, run *datatypes.RunState) error {
	ctx, span := tracer.Start(ctx, "Engine.phaseFinalReasoning")
	defer span.End()

	// Citations are fixed before synthesis so the prompt's numbered
	// source list matches what the caller will see.
	run.Citations = collectCitations(run.Steps)

	answer, err := e.oracle.Synthesize(ctx, run)
	if err != nil {
		return fmt.Errorf("final reasoning phase: %w", err)
	}
	run.FinalAnswer = strings.TrimSpace(answer)
	run.LogDecision(datatypes.PhaseReasoningAnswer,
		"synthesized answer with %d citations", len(run.Citations))
	return nil
}
