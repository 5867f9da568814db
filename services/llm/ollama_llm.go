// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3"
)

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OllamaClient calls the Ollama /api/generate endpoint without streaming.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *slog.Logger
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// NewOllamaClient returns a client for cfg. Empty fields take the defaults
// (localhost:11434, llama3).
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	baseURL := strings.TrimSuffix(firstNonEmpty(cfg.BaseURL, DefaultOllamaBaseURL), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("ollama base URL %q must start with http:// or https://", baseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		model:      firstNonEmpty(cfg.Model, DefaultOllamaModel),
		logger:     logger,
	}, nil
}

// Generate implements the LLMClient interface
func (o *OllamaClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.backend", BackendOllama),
		attribute.String("llm.model", o.model),
		attribute.Int("llm.prompt_len", len(prompt)),
	)

	options := make(map[string]any)
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	payload := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	}

	o.logger.Debug("generating text via Ollama", "model", o.model)
	var resp ollamaGenerateResponse
	err := postJSON(ctx, o.httpClient, "ollama", o.baseURL+"/api/generate", nil, payload, &resp)
	if err != nil {
		err = o.classify(err)
		recordSpanError(span, err)
		o.logger.Error("Ollama API call failed", "model", o.model, "error", err)
		return "", err
	}
	if resp.Response == "" {
		recordSpanError(span, ErrEmptyResponse)
		return "", fmt.Errorf("ollama: %w", ErrEmptyResponse)
	}

	span.SetAttributes(attribute.Int("llm.response_len", len(resp.Response)))
	return resp.Response, nil
}

// classify turns Ollama's 404 "model not found" into ErrModelNotFound with
// the pull hint.
func (o *OllamaClient) classify(err error) error {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		return err
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(statusErr.Body), &body) == nil &&
		strings.Contains(body.Error, "model") && strings.Contains(body.Error, "not found") {
		return fmt.Errorf("%w: %q, run 'ollama pull %s'", ErrModelNotFound, o.model, o.model)
	}
	return err
}
