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
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// defaultLocalNPredict is llama.cpp's completion length when MaxTokens is unset.
// SoapUI projects are long, so it is well above the server default.
const defaultLocalNPredict = 8192

// LocalLlamaCppClient calls a llama.cpp server's /completion endpoint.
type LocalLlamaCppClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

type llamaCppRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type llamaCppResponse struct {
	Content string `json:"content"`
}

// NewLocalLlamaCppClient returns a client for the server at baseURL.
func NewLocalLlamaCppClient(baseURL string, httpClient *http.Client, logger *slog.Logger) (*LocalLlamaCppClient, error) {
	if baseURL == "" {
		return nil, errors.New("local backend requires a base URL")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalLlamaCppClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}, nil
}

// Generate implements the LLMClient interface
func (l *LocalLlamaCppClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "LocalLlamaCppClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.backend", BackendLocal))

	payload := llamaCppRequest{
		Prompt:      prompt,
		NPredict:    defaultLocalNPredict,
		Temperature: params.Temperature,
		TopK:        params.TopK,
		TopP:        params.TopP,
		Stop:        params.Stop,
	}
	if params.MaxTokens != nil {
		payload.NPredict = *params.MaxTokens
	}

	var resp llamaCppResponse
	if err := postJSON(ctx, l.httpClient, "llama.cpp", l.baseURL+"/completion", nil, payload, &resp); err != nil {
		recordSpanError(span, err)
		l.logger.Error("llama.cpp call failed", "error", err)
		return "", err
	}
	if resp.Content == "" {
		recordSpanError(span, ErrEmptyResponse)
		return "", fmt.Errorf("llama.cpp: %w", ErrEmptyResponse)
	}
	return resp.Content, nil
}
