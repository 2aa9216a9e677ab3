// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type ForgeConfig struct {
	// Backend selects and configures the LLM backend.
	Backend BackendConfig `yaml:"backend"`

	// Loop controls the iteration engine.
	Loop LoopConfig `yaml:"loop"`

	// Sandbox controls candidate execution.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`

	// Archive configures run persistence.
	Archive ArchiveConfig `yaml:"archive"`
}

type BackendConfig struct {
	// Type can be "ollama" or "openai".
	Type    string `yaml:"type" validate:"oneof=ollama openai"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`

	// RequestsPerSecond rate-limits cloud backends. 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" validate:"gte=0"`

	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
}

type LoopConfig struct {
	MaxIterations  int  `yaml:"max_iterations" validate:"gte=1,lte=1000"`
	DiffMode       bool `yaml:"diff_mode"`
	QualityRetries int  `yaml:"quality_retries" validate:"gte=1,lte=100"`
	MaxRetries     int  `yaml:"max_retries" validate:"gte=0,lte=100"`

	// RetryBackoffMs is the base collaborator retry backoff in
	// milliseconds.
	RetryBackoffMs int `yaml:"retry_backoff_ms" validate:"gte=0"`

	Rollback       bool `yaml:"rollback"`
	RollbackWindow int  `yaml:"rollback_window" validate:"gte=1,lte=100"`
}

type SandboxConfig struct {
	// Command is the interpreter invocation, e.g. ["python3"].
	Command []string `yaml:"command" validate:"min=1"`

	// Suffix is the artifact file extension.
	Suffix string `yaml:"suffix"`

	// Language enables the pre-execution syntax screen when non-empty.
	Language string `yaml:"language,omitempty"`

	// TimeoutSeconds bounds one execution.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=1,lte=3600"`
}

type ServerConfig struct {
	Port          int `yaml:"port" validate:"gte=1,lte=65535"`
	MaxConcurrent int `yaml:"max_concurrent" validate:"gte=1,lte=256"`
}

type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir enables file logging when set. Supports ~ expansion.
	Dir string `yaml:"dir,omitempty"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

type ArchiveConfig struct {
	// Enabled persists completed runs to a local store.
	Enabled bool `yaml:"enabled"`

	// Path is the store directory. Supports ~ expansion.
	Path string `yaml:"path,omitempty"`
}

func DefaultConfig() ForgeConfig {
	return ForgeConfig{
		Backend: BackendConfig{
			Type:        "ollama",
			BaseURL:     "http://localhost:11434",
			Temperature: 0.2,
			MaxTokens:   8192,
		},
		Loop: LoopConfig{
			MaxIterations:  10,
			DiffMode:       true,
			QualityRetries: 3,
			MaxRetries:     3,
			RetryBackoffMs: 500,
			Rollback:       true,
			RollbackWindow: 3,
		},
		Sandbox: SandboxConfig{
			Command:        []string{"python3"},
			Suffix:         ".py",
			Language:       "python",
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Port:          8780,
			MaxConcurrent: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "~/.forge/archive",
		},
	}
}
