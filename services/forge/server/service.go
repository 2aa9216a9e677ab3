// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the iteration loop as an HTTP API with a
// websocket event stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/forge/services/forge/agent"
	"github.com/AleutianAI/forge/services/forge/history"
)

// ServiceConfig controls the task service.
type ServiceConfig struct {
	// Loop is the per-run loop configuration.
	Loop agent.Config

	// MaxConcurrent bounds simultaneously iterating runs.
	MaxConcurrent int
}

// DefaultServiceConfig returns production service settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Loop:          agent.DefaultConfig(),
		MaxConcurrent: 4,
	}
}

// run is the service-side record of one submitted task.
type run struct {
	id        string
	task      agent.Task
	status    RunStatus
	result    *agent.RunResult
	err       string
	startedAt time.Time
	duration  time.Duration
	cancel    context.CancelFunc
}

// Service owns submitted runs and drives them asynchronously.
//
// Thread Safety:
//
//	Safe for concurrent use. Run records are guarded by an RWMutex;
//	each run iterates on its own goroutine.
type Service struct {
	mu   sync.RWMutex
	runs map[string]*run

	cfg        ServiceConfig
	controller *agent.Controller
	hub        *Hub
	archive    *history.Archive
	logger     *slog.Logger
	sem        chan struct{}
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithArchive persists completed runs to the given archive.
func WithArchive(a *history.Archive) ServiceOption {
	return func(s *Service) { s.archive = a }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a Service driving runs through deps.
func NewService(cfg ServiceConfig, deps agent.Dependencies, opts ...ServiceOption) (*Service, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultServiceConfig().MaxConcurrent
	}

	s := &Service{
		runs:   make(map[string]*run),
		cfg:    cfg,
		hub:    NewHub(),
		logger: slog.Default(),
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
	for _, opt := range opts {
		opt(s)
	}

	controller, err := agent.NewController(cfg.Loop, deps,
		agent.WithLogger(s.logger),
		agent.WithEventHook(s.hub.Broadcast))
	if err != nil {
		return nil, fmt.Errorf("failed to build controller: %w", err)
	}
	s.controller = controller
	return s, nil
}

// Hub returns the websocket event hub.
func (s *Service) Hub() *Hub { return s.hub }

// Submit registers a task and starts iterating it in the background.
//
// Outputs:
//
//	string - The run ID, valid immediately for Get and the event stream
func (s *Service) Submit(task agent.Task, loopCfg agent.Config) string {
	id := uuid.NewString()
	task.ID = id

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        id,
		task:      task,
		status:    StatusRunning,
		startedAt: time.Now(),
		cancel:    cancel,
	}
	s.mu.Lock()
	s.runs[id] = r
	s.mu.Unlock()

	s.logger.Info("task submitted", "run_id", id, "task", task.Description)
	go s.execute(ctx, id, task, loopCfg)
	return id
}

// execute drives one run to completion on its own goroutine.
func (s *Service) execute(ctx context.Context, id string, task agent.Task, loopCfg agent.Config) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	controller := s.controller
	if loopCfg != (agent.Config{}) {
		// Per-request overrides need their own controller; collaborator
		// deps are shared.
		var err error
		controller, err = agent.NewController(loopCfg, s.controllerDeps(),
			agent.WithLogger(s.logger),
			agent.WithEventHook(s.hub.Broadcast))
		if err != nil {
			s.finishFailed(id, err)
			return
		}
	}

	result, err := controller.Run(ctx, task)

	s.mu.Lock()
	r, ok := s.runs[id]
	if ok {
		r.duration = time.Since(r.startedAt)
		if err != nil {
			r.status = StatusFailed
			r.err = err.Error()
		} else {
			r.status = StatusCompleted
			r.result = result
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("run failed", "run_id", id, "error", err)
		return
	}
	s.logger.Info("run completed",
		"run_id", id, "outcome", result.Outcome, "iterations", result.Iterations)

	if s.archive != nil {
		rec := history.ArchivedRun{
			ID:          id,
			Task:        task.Description,
			Outcome:     string(result.Outcome),
			BestScore:   result.BestScore,
			Iterations:  result.History,
			CompletedAt: time.Now(),
		}
		if err := s.archive.SaveRun(rec); err != nil {
			s.logger.Warn("failed to archive run", "run_id", id, "error", err)
		}
	}
}

func (s *Service) finishFailed(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		r.status = StatusFailed
		r.err = err.Error()
		r.duration = time.Since(r.startedAt)
	}
}

// controllerDeps recovers the shared collaborator set for override runs.
func (s *Service) controllerDeps() agent.Dependencies {
	return s.controller.Deps()
}

// snapshot converts a run record to its API representation.
func snapshot(r *run) RunResponse {
	resp := RunResponse{
		RunID:     r.id,
		Status:    r.status,
		Error:     r.err,
		StartedAt: r.startedAt,
		Duration:  r.duration,
	}
	if r.result != nil {
		resp.Outcome = r.result.Outcome
		resp.Reason = r.result.Reason
		resp.Iterations = r.result.Iterations
		resp.BestScore = r.result.BestScore
		resp.FinalArtifact = r.result.FinalArtifact
	}
	return resp
}

// Get returns the current state of one run.
func (s *Service) Get(id string) (RunResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return RunResponse{}, false
	}
	return snapshot(r), true
}

// List returns all runs, newest first.
func (s *Service) List() []RunResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunResponse, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, snapshot(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Abort cancels a running task.
func (s *Service) Abort(id string) error {
	s.mu.RLock()
	r, ok := s.runs[id]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	if r.status != StatusRunning {
		return fmt.Errorf("run %s is not running", id)
	}
	r.cancel()
	s.logger.Info("run aborted", "run_id", id)
	return nil
}

// ActiveRuns returns the number of runs currently iterating.
func (s *Service) ActiveRuns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.runs {
		if r.status == StatusRunning {
			n++
		}
	}
	return n
}
