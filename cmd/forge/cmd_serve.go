// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/forge/cmd/forge/config"
	"github.com/AleutianAI/forge/services/forge/history"
	"github.com/AleutianAI/forge/services/forge/server"
	"github.com/AleutianAI/forge/services/forge/telemetry"
)

// runServe starts the forge HTTP server and blocks until shutdown.
//
// Endpoints are registered under /api/v1/forge; Prometheus metrics are
// served at /metrics.
func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Global

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.ServiceName = "forge"
	telemetryCfg.ServiceVersion = Version
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %v\n", err)
		os.Exit(ExitError)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	deps, _, err := buildDependencies(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	opts := []server.ServiceOption{server.WithServiceLogger(slog.Default())}
	if cfg.Archive.Enabled {
		archive, err := history.OpenArchive(history.DefaultArchiveConfig(expandHome(cfg.Archive.Path)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening archive: %v\n", err)
			os.Exit(ExitError)
		}
		defer archive.Close()
		opts = append(opts, server.WithArchive(archive))
	}

	svcCfg := server.ServiceConfig{
		Loop:          loopConfig(cfg),
		MaxConcurrent: cfg.Server.MaxConcurrent,
	}
	svc, err := server.NewService(svcCfg, deps, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	server.RegisterRoutes(router.Group("/api/v1"), server.NewHandlers(svc, Version))
	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}

	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("forge server listening", "port", port, "backend", cfg.Backend.Type)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(ExitError)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown error", "error", err)
		}
	}
}
