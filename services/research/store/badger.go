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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianResearch/services/research/datatypes"
)

const runKeyPrefix = "run:"

// BadgerRunStore is the production RunStore over an embedded BadgerDB.
type BadgerRunStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a persistent run store at the given
// directory path.
func OpenBadger(path string) (*BadgerRunStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open the run store at %s: %w", path, err)
	}
	slog.Info("Opened run store", "path", path)
	return &BadgerRunStore{db: db}, nil
}

// OpenBadgerInMemory opens a run store with no disk persistence. Used by
// tests and by deployments that treat run history as ephemeral.
func OpenBadgerInMemory() (*BadgerRunStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open the in-memory run store: %w", err)
	}
	return &BadgerRunStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerRunStore) Close() error {
	return s.db.Close()
}

func (s *BadgerRunStore) Get(ctx context.Context, id string) (*datatypes.RunState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var run datatypes.RunState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	return &run, nil
}

func (s *BadgerRunStore) Set(ctx context.Context, run *datatypes.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.ID == "" {
		return fmt.Errorf("refusing to store a run without an ID")
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runKeyPrefix+run.ID), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to write run %s: %w", run.ID, err)
	}
	return nil
}

func (s *BadgerRunStore) List(ctx context.Context, limit int) ([]*datatypes.RunState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var runs []*datatypes.RunState
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var run datatypes.RunState
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			})
			if err != nil {
				// A corrupt record should not hide every other run.
				slog.Warn("Skipping unreadable run record",
					"key", string(it.Item().Key()), "error", err)
				continue
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
