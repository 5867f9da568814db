// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides text generation backends behind a single interface.
//
// Every backend performs one synchronous request per Generate call. There
// are no retries and no streaming; callers bound the call with their
// context.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// GenerationParams are optional sampling controls. Nil fields use the
// backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Backend names accepted by NewClient.
const (
	BackendOllama    = "ollama"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendClaude    = "claude"
	BackendLocal     = "local"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of the Backend* constants.
	Backend string `yaml:"backend"`

	// BaseURL is the server root for ollama and local, or an API base
	// override for openai and anthropic. Empty uses the backend default.
	BaseURL string `yaml:"base_url"`

	// Model is the model name passed to the backend.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key for
	// cloud backends. Empty uses the backend's conventional variable.
	APIKeyEnv string `yaml:"api_key_env"`

	// APIKeyFile is read when the environment variable is unset.
	APIKeyFile string `yaml:"api_key_file"`

	// HTTPTimeout bounds a single HTTP exchange. Zero means no client-side
	// limit beyond the caller's context.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// NewClient builds the backend named by cfg.Backend.
//
// # Description
//
// Mirrors the service's backend switch: ollama (default), openai,
// anthropic/claude, and local llama.cpp servers. Cloud backends load their
// API key into protected memory at construction.
//
// # Inputs
//
//   - cfg: Backend configuration.
//   - logger: Receives construction and request logs. Nil uses slog.Default().
//
// # Outputs
//
//   - LLMClient: Ready for concurrent use.
//   - error: ErrUnknownBackend, ErrMissingAPIKey, or a configuration error.
func NewClient(cfg Config, logger *slog.Logger) (LLMClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendOllama:
		logger.Info("using Ollama LLM backend", "base_url", cfg.BaseURL, "model", cfg.Model)
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: httpClient, Logger: logger})
	case BackendLocal:
		logger.Info("using local llama.cpp LLM backend", "base_url", cfg.BaseURL)
		return NewLocalLlamaCppClient(cfg.BaseURL, httpClient, logger)
	case BackendOpenAI:
		key, err := LoadAPIKey(firstNonEmpty(cfg.APIKeyEnv, "OPENAI_API_KEY"),
			firstNonEmpty(cfg.APIKeyFile, "/run/secrets/openai_api_key"))
		if err != nil {
			return nil, err
		}
		logger.Info("using OpenAI LLM backend", "model", cfg.Model)
		return NewOpenAIClient(OpenAIConfig{APIKey: key, BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: httpClient, Logger: logger}), nil
	case BackendAnthropic, BackendClaude:
		key, err := LoadAPIKey(firstNonEmpty(cfg.APIKeyEnv, "ANTHROPIC_API_KEY"),
			firstNonEmpty(cfg.APIKeyFile, "/run/secrets/anthropic_api_key"))
		if err != nil {
			return nil, err
		}
		logger.Info("using Anthropic (Claude) LLM backend", "model", cfg.Model)
		return NewAnthropicClient(AnthropicConfig{APIKey: key, BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: httpClient, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
