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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

// Prompt assembly limits. Evidence is already deduplicated upstream; these
// caps only protect the context window on very long runs.
const (
	maxPromptChunks       = 40
	maxPromptChunkChars   = 1200
	maxPromptFindings     = 24
	maxPromptFindingChars = 2000
	maxPromptDocChars     = 20000
)

func buildClassifyTaskPrompt(task string) string {
	var b strings.Builder
	b.WriteString("You are the planning component of a research engine with access to an internal\n")
	b.WriteString("document store (semantic search) and the public web (search + page extraction).\n\n")
	b.WriteString("Classify the research task below and plan the first round of queries.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(task)
	b.WriteString("\n\nRespond with ONLY a JSON object, no prose, in this exact shape:\n")
	b.WriteString(`{
  "task_type": "one of: profile_analysis, factual_question, comparison, summarization, open_research",
  "intent_summary": "one sentence restating what the user wants",
  "plan_overview": "one sentence describing the overall approach",
  "plan_steps": ["short step descriptions"],
  "internal_queries": ["queries for the internal document store"],
  "external_queries": ["web search queries, empty if internal knowledge should suffice"],
  "needs_external_knowledge": false
}`)
	b.WriteString("\n\nSet needs_external_knowledge true only when the task clearly requires\n")
	b.WriteString("information that internal documents cannot contain.")
	return b.String()
}

func buildDriveIntentPrompt(task string) string {
	var b strings.Builder
	b.WriteString("Decide whether the task below is a request about files in the user's Drive\n")
	b.WriteString("repository (listing files, reading or summarizing a named file, comparing files).\n")
	b.WriteString("Tasks that merely mention documents as a topic are NOT Drive requests.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(task)
	b.WriteString("\n\nRespond with ONLY a JSON object:\n")
	b.WriteString(`{
  "intent": "one of: none, list, fetch, compare",
  "summarize": false,
  "file_ids": [],
  "file_index": 0,
  "query": "the file name or search phrase to look up, empty for list-all"
}`)
	b.WriteString("\n\nUse intent \"none\" whenever you are unsure.")
	return b.String()
}

func buildStructuringPrompt(run *datatypes.RunState) string {
	var b strings.Builder
	b.WriteString("You are structuring the evidence collected so far for a research task.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(run.Task)
	b.WriteString("\n\nCollected evidence:\n")
	writeChunks(&b, run.Exploration.InternalChunks)
	b.WriteString("\nOrganize this evidence into a structured outline keyed by subtopic, list the\n")
	b.WriteString("gaps that remain, and say whether external (web) knowledge is needed to close\n")
	b.WriteString("them. Respond with ONLY a JSON object:\n")
	b.WriteString(`{
  "structured_knowledge": { "any JSON structure organizing the evidence": "..." },
  "gaps": ["unanswered aspects of the task"],
  "needs_external_knowledge": false
}`)
	return b.String()
}

func buildReplanPrompt(run *datatypes.RunState) string {
	var b strings.Builder
	b.WriteString("You are reviewing the progress of a research run and must decide whether to\n")
	b.WriteString("finish now or gather more evidence.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(run.Task)
	fmt.Fprintf(&b, "\n\nSteps used so far: %d of %d allowed.\n", len(run.Steps), run.Config.MaxSteps)
	if len(run.Exploration.StructuredKnowledge) > 0 {
		b.WriteString("\nStructured knowledge so far:\n")
		b.Write(run.Exploration.StructuredKnowledge)
		b.WriteString("\n")
	}
	if len(run.Exploration.DecisionLog) > 0 {
		b.WriteString("\nDecision log:\n")
		for _, line := range run.Exploration.DecisionLog {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nIf the evidence already supports a solid answer, finish. Otherwise propose\n")
	b.WriteString("the next queries. Respond with ONLY a JSON object:\n")
	b.WriteString(`{
  "should_finish": false,
  "reason": "one sentence",
  "internal_queries": ["further internal queries, empty if none"],
  "external_queries": ["further web queries, empty if none"],
  "needs_external_knowledge": false
}`)
	return b.String()
}

func buildSynthesisPrompt(run *datatypes.RunState) string {
	var b strings.Builder
	b.WriteString("Write the final answer for the research task below, using only the evidence\n")
	b.WriteString("provided. Cite sources inline as [1], [2], ... matching the numbered source\n")
	b.WriteString("list. Be direct; say plainly when the evidence is insufficient on a point.\n\n")
	b.WriteString("Task:\n")
	b.WriteString(run.Task)
	if len(run.Exploration.StructuredKnowledge) > 0 {
		b.WriteString("\n\nStructured knowledge:\n")
		b.Write(run.Exploration.StructuredKnowledge)
	}
	b.WriteString("\n\nInternal evidence:\n")
	writeChunks(&b, run.Exploration.InternalChunks)
	if len(run.Exploration.ExternalFindings) > 0 {
		b.WriteString("\nExternal findings:\n")
		writeFindings(&b, run.Exploration.ExternalFindings)
	}
	b.WriteString("\nNumbered sources:\n")
	for _, c := range run.Citations {
		fmt.Fprintf(&b, "[%d] %s\n", c.ID, c.Source)
	}
	b.WriteString("\nAnswer:")
	return b.String()
}

func buildDocumentSynthesisPrompt(task string, docs []datatypes.DriveDocument) string {
	var b strings.Builder
	b.WriteString("Answer the request below using only the attached documents.\n\n")
	b.WriteString("Request:\n")
	b.WriteString(task)
	b.WriteString("\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "\n--- Document: %s ---\n", d.Name)
		text := d.Text
		if len(text) > maxPromptDocChars {
			text = text[:maxPromptDocChars]
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer:")
	return b.String()
}

func buildFollowupPrompt(priorAnswer, question string) string {
	var b strings.Builder
	b.WriteString("A research run previously produced the answer below. Answer the follow-up\n")
	b.WriteString("question using only that answer as context; do not invent new facts.\n\n")
	b.WriteString("Previous answer:\n")
	b.WriteString(priorAnswer)
	b.WriteString("\n\nFollow-up question:\n")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// =============================================================================
// Shared Formatting Helpers
// =============================================================================

func writeChunks(b *strings.Builder, chunks []datatypes.EvidenceChunk) {
	if len(chunks) == 0 {
		b.WriteString("(none)\n")
		return
	}
	n := len(chunks)
	if n > maxPromptChunks {
		n = maxPromptChunks
	}
	for i := 0; i < n; i++ {
		c := chunks[i]
		text := c.Text
		if len(text) > maxPromptChunkChars {
			text = text[:maxPromptChunkChars]
		}
		fmt.Fprintf(b, "[doc %s #%d, source %s]\n%s\n\n", c.DocumentID, c.ChunkIndex, c.Source, text)
	}
}

func writeFindings(b *strings.Builder, findings []datatypes.ExternalFinding) {
	n := len(findings)
	if n > maxPromptFindings {
		n = maxPromptFindings
	}
	for i := 0; i < n; i++ {
		f := findings[i]
		content := f.Content
		if len(content) > maxPromptFindingChars {
			content = content[:maxPromptFindingChars]
		}
		fmt.Fprintf(b, "[%s] %s (%s)\n%s\n\n", f.Kind, f.Title, f.URL, content)
	}
}
