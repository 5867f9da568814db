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
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// systemPersona frames every request. The instruction text itself carries
// the output rules.
const systemPersona = "You are an expert in SoapUI test automation. You answer with XML only."

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey     *APIKey
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIClient calls the chat completions API through go-openai. The
// underlying client is built per call so the key stays sealed between
// requests.
type OpenAIClient struct {
	cfg    OpenAIConfig
	model  string
	logger *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{cfg: cfg, model: firstNonEmpty(cfg.Model, DefaultOpenAIModel), logger: logger}
}

// Generate implements the LLMClient interface
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.backend", BackendOpenAI),
		attribute.String("llm.model", o.model),
	)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPersona},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	var resp openai.ChatCompletionResponse
	err := o.cfg.APIKey.Use(func(key string) error {
		clientCfg := openai.DefaultConfig(key)
		if o.cfg.BaseURL != "" {
			clientCfg.BaseURL = o.cfg.BaseURL
		}
		if o.cfg.HTTPClient != nil {
			clientCfg.HTTPClient = o.cfg.HTTPClient
		}
		var callErr error
		resp, callErr = openai.NewClientWithConfig(clientCfg).CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			err = &StatusError{Backend: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		recordSpanError(span, err)
		o.logger.Error("OpenAI API call failed", "model", o.model, "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		recordSpanError(span, ErrEmptyResponse)
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	o.logger.Debug("received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
