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

import "encoding/json"

// RawDecision is an opaque structured payload produced by the oracle. The
// engine stores and forwards it without inspecting its shape.
type RawDecision = json.RawMessage

// TaskClassification is the oracle's decision for the Understanding phase:
// what kind of task this is, how to summarize its intent, and which queries
// to start from. Query lists may come back empty or dirty; the engine
// normalizes them before use.
type TaskClassification struct {
	TaskType               string   `json:"task_type"`
	IntentSummary          string   `json:"intent_summary"`
	PlanOverview           string   `json:"plan_overview"`
	PlanSteps              []string `json:"plan_steps"`
	InternalQueries        []string `json:"internal_queries"`
	ExternalQueries        []string `json:"external_queries"`
	NeedsExternalKnowledge bool     `json:"needs_external_knowledge"`
}

// TaskTypeProfileAnalysis marks tasks that analyze a person's profile.
// The Internal Knowledge phase appends fixed supplemental queries for it.
const TaskTypeProfileAnalysis = "profile_analysis"

// StructuringResult is the oracle's decision for the Structuring phase.
/// NeedsExternalKnowledge is OR'd into the run state: structuring can add
// external need but never retract it.
type StructuringResult struct {
	StructuredKnowledge RawDecision `json:"structured_knowledge"`
	Gaps                []string    `json:"gaps"`
	NeedsExternalKnowledge bool     `json:"needs_external_knowledge"`
}

// ReplanDecision is the oracle's decision for the replanning loop. When
// ShouldFinish is set the engine forces NeedsExternalKnowledge false and
/// drops the external queries, whatever the oracle put in those fields:
// "finish" always wins, which prevents explore/finish oscillation.
type ReplanDecision struct {
	ShouldFinish           bool     `json:"should_finish"`
	Reason                 string   `json:"reason"`
	InternalQueries        []string `json:"internal_queries"`
	ExternalQueries        []string `json:"external_queries"`
	NeedsExternalKnowledge bool     `json:"needs_external_knowledge"`
}

// DriveIntentKind classifies whether a task is a Drive-repository request.
type DriveIntentKind string

const (
	DriveIntentNone    DriveIntentKind = "none"
	DriveIntentList    DriveIntentKind = "list"
	DriveIntentFetch   DriveIntentKind = "fetch"
	DriveIntentCompare DriveIntentKind = "compare"
)

// DriveIntent is the oracle's fast-path classification. Intent "none"
// means the task goes through the normal phase sequence.
type DriveIntent struct {
	Intent    DriveIntentKind `json:"intent"`
	Summarize bool            `json:"summarize"`
	FileIDs   []string        `json:"file_ids"`
	// FileIndex selects an item from a listing, 1-based. Zero means
	// "first result".
	FileIndex int    `json:"file_index"`
	Query     string `json:"query"`
}

// DriveDocument is one fetched Drive file handed to the oracle for
// fast-path synthesis.
type DriveDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}
