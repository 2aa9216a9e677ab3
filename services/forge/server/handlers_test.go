// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/forge/services/forge/agent"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := DefaultServiceConfig()
	cfg.Loop.MaxIterations = 1

	svc, err := NewService(cfg, agent.Dependencies{
		Generator: &agent.MockGenerator{},
		Executor:  &agent.MockExecutor{},
		Reviewer:  &agent.MockReviewer{},
		Evaluator: &agent.MockEvaluator{},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(svc, "test"))
	return router, svc
}

func TestHandlers_HandleSubmitTask(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := `{"description": "print ok", "goals": ["prints ok"]}`
	req, _ := http.NewRequest("POST", "/v1/forge/tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	var resp SubmitTaskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.RunID == "" {
		t.Error("expected a run ID")
	}
	if resp.Status != StatusRunning {
		t.Errorf("expected status running, got %q", resp.Status)
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandlers_HandleSubmitTask_InvalidRequest(t *testing.T) {
	router, _ := setupTestRouter(t)

	// Missing required description
	body := `{}`
	req, _ := http.NewRequest("POST", "/v1/forge/tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Errorf("expected code INVALID_REQUEST, got %q", resp.Code)
	}
}

func TestHandlers_HandleGetRun_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	req, _ := http.NewRequest("GET", "/v1/forge/tasks/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Code != "RUN_NOT_FOUND" {
		t.Errorf("expected code RUN_NOT_FOUND, got %q", resp.Code)
	}
}

func TestHandlers_HandleAbortRun_NotRunning(t *testing.T) {
	router, _ := setupTestRouter(t)

	req, _ := http.NewRequest("POST", "/v1/forge/tasks/nonexistent/abort", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestHandlers_HandleHealth(t *testing.T) {
	router, _ := setupTestRouter(t)

	req, _ := http.NewRequest("GET", "/v1/forge/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "healthy" || resp.Version != "test" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestHandlers_HandleReady(t *testing.T) {
	router, _ := setupTestRouter(t)

	req, _ := http.NewRequest("GET", "/v1/forge/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp ReadyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Ready {
		t.Error("expected ready = true")
	}
}
