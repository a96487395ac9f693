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
)

// replan consults the oracle after structuring and applies its decision
// to the run.
func (e *Engine) replan(ctx context.Context, run *datatypes.RunState) error {
	ctx, span := tracer.Start(ctx, "Engine.replan")
	defer span.End()

	decision, err := e.oracle.Replan(ctx, run)
	if err != nil {
		return fmt.Errorf("replanning: %w", err)
	}
	applyReplan(run, decision)
	return nil
}

// applyReplan overwrites the run's query sets and external-need flag with
// the replanner's decision. A "finish" verdict always wins: it forces the
// external-need flag off and clears the external queries no matter what
// the oracle put in those fields, so a run can never oscillate between
// finishing and exploring.
func applyReplan(run *datatypes.RunState, decision *datatypes.ReplanDecision) {
	exp := &run.Exploration
	exp.InternalQueries = normalizeQueries(decision.InternalQueries, "")
	exp.ExternalQueries = normalizeQueries(decision.ExternalQueries, "")
	exp.NeedsExternalKnowledge = decision.NeedsExternalKnowledge

	if decision.ShouldFinish {
		exp.ShouldFinishEarly = true
		exp.NeedsExternalKnowledge = false
		exp.ExternalQueries = nil
	}

	run.LogDecision(datatypes.PhaseStructuring,
		"replan: finish=%v needs_external=%v external_queries=%d (%s)",
		decision.ShouldFinish, exp.NeedsExternalKnowledge,
		len(exp.ExternalQueries), decision.Reason)
}
