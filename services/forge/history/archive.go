// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const runKeyPrefix = "run/"

// ArchivedRun is a completed task run as persisted to the archive.
type ArchivedRun struct {
	ID          string      `json:"id"`
	Task        string      `json:"task"`
	Outcome     string      `json:"outcome"`
	BestScore   int         `json:"best_score"`
	Iterations  []Iteration `json:"iterations"`
	CompletedAt time.Time   `json:"completed_at"`
}

// ArchiveConfig configures the on-disk run archive.
type ArchiveConfig struct {
	// Path is the directory for the archive database. Ignored when
	// InMemory is true.
	Path string

	// InMemory runs the archive without disk persistence. Used in tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives archive log output. Badger's own logging is
	// disabled; it is far too chatty for an embedded audit store.
	Logger *slog.Logger
}

// DefaultArchiveConfig returns production settings for the given directory.
func DefaultArchiveConfig(path string) ArchiveConfig {
	return ArchiveConfig{Path: path, SyncWrites: true}
}

// Archive persists completed task runs in an embedded BadgerDB.
//
// The archive is audit-only: nothing in the iteration loop reads it back.
// Tasks remain fully task-local; the archive is written once, after a run
// reaches a terminal outcome.
//
// Thread Safety:
//
//	Archive is safe for concurrent use.
type Archive struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenArchive opens (or creates) the run archive.
func OpenArchive(cfg ArchiveConfig) (*Archive, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("archive path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening run archive: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{db: db, logger: logger}, nil
}

// SaveRun persists a completed run under its ID.
func (a *Archive) SaveRun(run ArchivedRun) error {
	if run.ID == "" {
		return fmt.Errorf("archived run needs an ID")
	}
	if run.CompletedAt.IsZero() {
		run.CompletedAt = time.Now()
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", run.ID, err)
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runKeyPrefix+run.ID), data)
	})
	if err != nil {
		return fmt.Errorf("writing run %s: %w", run.ID, err)
	}
	a.logger.Debug("run archived", "run_id", run.ID, "iterations", len(run.Iterations))
	return nil
}

// LoadRun reads one archived run by ID.
func (a *Archive) LoadRun(id string) (*ArchivedRun, error) {
	var run ArchivedRun
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the IDs of all archived runs.
func (a *Archive) ListRuns() ([]string, error) {
	var ids []string
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[len(runKeyPrefix):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return ids, nil
}

// Close releases the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
