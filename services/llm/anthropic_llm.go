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
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	defaultAnthropicURL     = "https://api.anthropic.com/v1/messages"
	DefaultAnthropicModel   = "claude-3-5-sonnet-20240620"
	defaultAnthropicMaxToks = 8192
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey     *APIKey
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AnthropicClient calls the Messages API over plain HTTP.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     *APIKey
	url        string
	model      string
	logger     *slog.Logger
}

func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicClient{
		httpClient: httpClient,
		apiKey:     cfg.APIKey,
		url:        firstNonEmpty(cfg.BaseURL, defaultAnthropicURL),
		model:      firstNonEmpty(cfg.Model, DefaultAnthropicModel),
		logger:     logger,
	}
}

// Generate implements the LLMClient interface
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "AnthropicClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.backend", BackendAnthropic),
		attribute.String("llm.model", a.model),
	)

	payload := anthropicRequest{
		Model:       a.model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		System:      systemPersona,
		MaxTokens:   defaultAnthropicMaxToks,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		StopSeqs:    params.Stop,
	}
	if params.MaxTokens != nil {
		payload.MaxTokens = *params.MaxTokens
	}

	var resp anthropicResponse
	err := a.apiKey.Use(func(key string) error {
		headers := map[string]string{
			// net/http may keep header values (HTTP/2 HPACK table) after Do returns.
			"x-api-key":         strings.Clone(key),
			"anthropic-version": anthropicAPIVersion,
		}
		return postJSON(ctx, a.httpClient, "anthropic", a.url, headers, payload, &resp)
	})
	if err != nil {
		recordSpanError(span, err)
		a.logger.Error("Anthropic API call failed", "model", a.model, "error", err)
		return "", err
	}
	if resp.Error != nil {
		err := fmt.Errorf("anthropic API error: %s - %s", resp.Error.Type, resp.Error.Message)
		recordSpanError(span, err)
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		recordSpanError(span, ErrEmptyResponse)
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	a.logger.Debug("received response from Anthropic", "id", resp.ID, "response_len", text.Len())
	return text.String(), nil
}
