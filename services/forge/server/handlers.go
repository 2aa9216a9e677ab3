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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/forge/services/forge/agent"
)

// Handlers contains the HTTP handlers for the forge task API.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc     *Service
	version string
}

// NewHandlers creates handlers wrapping svc.
func NewHandlers(svc *Service, version string) *Handlers {
	return &Handlers{svc: svc, version: version}
}

// HandleSubmitTask handles POST /v1/forge/tasks.
//
// Response:
//
//	202 Accepted: SubmitTaskResponse
//	400 Bad Request: Validation error
func (h *Handlers) HandleSubmitTask(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSubmitTask")

	var req SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	task := agent.Task{
		Description: req.Description,
		Goals:       req.Goals,
		Args:        req.Args,
	}

	var loopCfg agent.Config
	if req.MaxIterations > 0 || req.DiffMode != nil {
		loopCfg = h.svc.cfg.Loop
		if req.MaxIterations > 0 {
			loopCfg.MaxIterations = req.MaxIterations
		}
		if req.DiffMode != nil {
			loopCfg.DiffMode = *req.DiffMode
		}
	}

	id := h.svc.Submit(task, loopCfg)
	logger.Info("Task accepted", "run_id", id)
	c.JSON(http.StatusAccepted, SubmitTaskResponse{RunID: id, Status: StatusRunning})
}

// HandleGetRun handles GET /v1/forge/tasks/:id.
//
// Response:
//
//	200 OK: RunResponse
//	404 Not Found: Unknown run ID
func (h *Handlers) HandleGetRun(c *gin.Context) {
	id := c.Param("id")
	resp, ok := h.svc.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Run not found",
			Code:  "RUN_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleListRuns handles GET /v1/forge/tasks.
func (h *Handlers) HandleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, RunListResponse{Runs: h.svc.List()})
}

// HandleAbortRun handles POST /v1/forge/tasks/:id/abort.
//
// Response:
//
//	200 OK: RunResponse
//	409 Conflict: Run is not running
func (h *Handlers) HandleAbortRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAbortRun")

	id := c.Param("id")
	if err := h.svc.Abort(id); err != nil {
		logger.Warn("Abort refused", "run_id", id, "error", err)
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "ABORT_REFUSED",
		})
		return
	}
	resp, _ := h.svc.Get(id)
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/forge/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

// HandleReady handles GET /v1/forge/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{Ready: true, ActiveRuns: h.svc.ActiveRuns()})
}

// getOrCreateRequestID propagates or mints the X-Request-ID header.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
