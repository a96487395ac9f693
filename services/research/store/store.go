// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists research run state in an embedded BadgerDB.
//
// The store is a plain key-value mapping from run ID to serialized
// RunState. Concurrency discipline lives with the callers: exactly one
// engine goroutine writes a given run for its lifetime, so the store does
// no per-key locking of its own.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

// ErrNotFound indicates no run exists under the requested ID.
var ErrNotFound = errors.New("run not found")

// RunStore is the persistence surface the engine and handlers consume.
type RunStore interface {
	// Get returns the run with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*datatypes.RunState, error)

	// Set writes the run under its own ID, replacing any prior version.
	Set(ctx context.Context, run *datatypes.RunState) error

	// List returns all runs ordered newest-first by creation time. Limit
	// caps the result; a non-positive limit returns everything.
	List(ctx context.Context, limit int) ([]*datatypes.RunState, error)
}
