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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all forge task routes with the router.
//
// Description:
//
//	Registers all /v1/forge/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/forge/tasks - Submit a task
//	GET  /v1/forge/tasks - List runs
//	GET  /v1/forge/tasks/:id - Get one run
//	POST /v1/forge/tasks/:id/abort - Abort a running task
//	GET  /v1/forge/events - Websocket run event stream
//	GET  /v1/forge/health - Health check
//	GET  /v1/forge/ready - Readiness check
//
// Example:
//
//	svc, _ := server.NewService(server.DefaultServiceConfig(), deps)
//	handlers := server.NewHandlers(svc, version)
//
//	v1 := router.Group("/v1")
//	server.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	forge := rg.Group("/forge")
	{
		// Task lifecycle
		forge.POST("/tasks", handlers.HandleSubmitTask)
		forge.GET("/tasks", handlers.HandleListRuns)
		forge.GET("/tasks/:id", handlers.HandleGetRun)
		forge.POST("/tasks/:id/abort", handlers.HandleAbortRun)

		// Event stream
		forge.GET("/events", handlers.svc.Hub().HandleEvents)

		// Health checks
		forge.GET("/health", handlers.HandleHealth)
		forge.GET("/ready", handlers.HandleReady)
	}
}
