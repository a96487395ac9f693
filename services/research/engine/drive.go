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

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/research/tools"
)

// NoDriveFilesAnswer is the fixed answer when a Drive intent resolves
// zero documents. It is a normal completion, not an error.
const NoDriveFilesAnswer = "No matching Drive files were found for that name."

const maxCompareFiles = 2

// driveFastPath checks whether the task is a Drive-repository request and,
// if so, handles the entire run without entering the phase sequence.
//
// The returned bool reports whether the fast path claimed the run. When
// claimed, the caller terminates the run with the returned error (nil for
// a normal completion, ErrBudgetExhausted or an oracle failure otherwise).
// A failed intent classification is treated as a non-claim: the task just
// proceeds through the normal phases.
func (e *Engine) driveFastPath(ctx context.Context, run *datatypes.RunState) (bool, error) {
	if !run.Config.ToolEnabled(tools.NameDriveList) {
		return false, nil
	}

	ctx, span := tracer.Start(ctx, "Engine.driveFastPath")
	defer span.End()

	intent, err := e.oracle.ClassifyDriveIntent(ctx, run)
	if err != nil {
		// Not a hard failure: an unclassifiable task still has the whole
		// phase sequence ahead of it.
		run.LogDecision(datatypes.PhaseUnderstanding,
			"drive intent classification failed (%v), continuing with phases", err)
		return false, nil
	}
	if intent.Intent == datatypes.DriveIntentNone {
		return false, nil
	}

	run.LogDecision(datatypes.PhaseUnderstanding,
		"drive fast path claimed the run: intent=%s summarize=%v", intent.Intent, intent.Summarize)

	docs, rawListing, err := e.resolveDriveDocuments(ctx, run, intent)
	if err != nil {
		return true, err
	}
	if rawListing != "" {
		// A bare listing request finishes with the listing itself.
		run.FinalAnswer = rawListing
		return true, nil
	}
	if len(docs) == 0 {
		run.FinalAnswer = NoDriveFilesAnswer
		return true, nil
	}

	answer, err := e.oracle.SynthesizeFromDocuments(ctx, run.Task, docs)
	if err != nil {
		return true, fmt.Errorf("drive fast path synthesis: %w", err)
	}
	run.FinalAnswer = answer
	return true, nil
}

// resolveDriveDocuments turns a Drive intent into fetched documents. The
// rawListing return is non-empty only for a list intent without a summary
// request, where the listing text is the final answer as-is.
func (e *Engine) resolveDriveDocuments(ctx context.Context, run *datatypes.RunState, intent *datatypes.DriveIntent) (docs []datatypes.DriveDocument, rawListing string, err error) {
	switch intent.Intent {
	case datatypes.DriveIntentList:
		result, err := e.invokeTool(ctx, run, tools.NameDriveList, intent.Query,
			"list Drive files matching the request")
		if err != nil {
			return nil, "", err
		}
		if len(result.Files) == 0 {
			return nil, "", nil
		}
		if !intent.Summarize {
			return nil, result.Content, nil
		}
		file, ok := selectByIndex(result.Files, intent.FileIndex)
		if !ok {
			return nil, "", nil
		}
		return e.fetchDriveFiles(ctx, run, []string{file.ID})

	case datatypes.DriveIntentFetch, datatypes.DriveIntentCompare:
		ids := intent.FileIDs
		limit := 1
		if intent.Intent == datatypes.DriveIntentCompare {
			limit = maxCompareFiles
		}
		if len(ids) > limit {
			ids = ids[:limit]
		}
		if len(ids) == 0 {
			// No ids supplied: fall back to listing and index selection.
			result, err := e.invokeTool(ctx, run, tools.NameDriveList, intent.Query,
				"find the Drive file named in the request")
			if err != nil {
				return nil, "", err
			}
			file, ok := selectByIndex(result.Files, intent.FileIndex)
			if !ok {
				return nil, "", nil
			}
			ids = []string{file.ID}
		}
		return e.fetchDriveFiles(ctx, run, ids)

	default:
		return nil, "", nil
	}
}

// fetchDriveFiles downloads each file id and keeps the ones that yielded
// text. A degraded fetch contributes nothing rather than aborting.
func (e *Engine) fetchDriveFiles(ctx context.Context, run *datatypes.RunState, ids []string) ([]datatypes.DriveDocument, string, error) {
	var docs []datatypes.DriveDocument
	for _, id := range ids {
		result, err := e.invokeTool(ctx, run, tools.NameDriveFetch, id,
			"fetch the content of Drive file "+id)
		if err != nil {
			return nil, "", err
		}
		for _, f := range result.Files {
			if f.Text == "" {
				continue
			}
			docs = append(docs, datatypes.DriveDocument{ID: f.ID, Name: f.Name, Text: f.Text})
		}
	}
	return docs, "", nil
}

// selectByIndex picks the 1-based indexed file from a listing; index 0
// means the first result.
func selectByIndex(files []tools.DriveFile, index int) (tools.DriveFile, bool) {
	if len(files) == 0 {
		return tools.DriveFile{}, false
	}
	if index <= 0 {
		return files[0], true
	}
	if index > len(files) {
		return tools.DriveFile{}, false
	}
	return files[index-1], true
}
