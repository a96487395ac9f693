// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

func openTestStore(t *testing.T) *BadgerRunStore {
	t.Helper()
	s, err := OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerRunStore_SetGetRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := datatypes.NewRunState("what is weaviate", datatypes.RunConfig{MaxSteps: 5})
	run.LogDecision(datatypes.PhaseUnderstanding, "classified as %s", "open_research")
	require.NoError(t, s.Set(ctx, run))

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Task, got.Task)
	assert.Equal(t, datatypes.RunStatusRunning, got.Status)
	assert.Equal(t, run.Exploration.DecisionLog, got.Exploration.DecisionLog)
}

func TestBadgerRunStore_GetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerRunStore_SetRejectsEmptyID(t *testing.T) {
	s := openTestStore(t)

	err := s.Set(context.Background(), &datatypes.RunState{Task: "no id"})
	assert.Error(t, err)
}

func TestBadgerRunStore_SetOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := datatypes.NewRunState("task", datatypes.RunConfig{})
	require.NoError(t, s.Set(ctx, run))

	run.Status = datatypes.RunStatusCompleted
	run.FinalAnswer = "done"
	require.NoError(t, s.Set(ctx, run))

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.RunStatusCompleted, got.Status)
	assert.Equal(t, "done", got.FinalAnswer)
}

func TestBadgerRunStore_ListNewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	ids := make([]string, 3)
	for i := 0; i < 3; i++ {
		run := datatypes.NewRunState("task", datatypes.RunConfig{})
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Set(ctx, run))
		ids[i] = run.ID
	}

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID, "the most recent run lists first")
	assert.Equal(t, ids[0], runs[2].ID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[2], limited[0].ID)
}

func TestBadgerRunStore_ListEmpty(t *testing.T) {
	s := openTestStore(t)

	runs, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
