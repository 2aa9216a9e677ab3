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

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

const openAIKeySecretPath = "/run/secrets/openai_api_key"

// ResolveOpenAIKey locates the OpenAI API key and seals it into an
// enclave.
//
// Description:
//
//	Checks the OPENAI_API_KEY environment variable first, then the
//	container secret path. The key is held in encrypted memory and the
//	environment variable is scrubbed so the plaintext never outlives
//	this call.
//
// Outputs:
//
//	*memguard.Enclave - The sealed key
//	error - When no key can be found
func ResolveOpenAIKey() (*memguard.Enclave, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		os.Unsetenv("OPENAI_API_KEY")
		return memguard.NewEnclave([]byte(key)), nil
	}

	data, err := os.ReadFile(openAIKeySecretPath)
	if err == nil {
		slog.Info("Read the OpenAI API key from container secrets")
		return memguard.NewEnclave([]byte(strings.TrimSpace(string(data)))), nil
	}

	return nil, fmt.Errorf("OPENAI_API_KEY not set and no secret at %s", openAIKeySecretPath)
}
