// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"time"

	"github.com/AleutianAI/soapgen/services/generator/policy"
	"github.com/AleutianAI/soapgen/services/generator/task"
	"github.com/go-playground/validator/v10"
)

var requestValidate = validator.New(validator.WithRequiredStructEnabled())

// GenerationRequest is the body of POST /v1/generations.
type GenerationRequest struct {
	SpecDocument string   `json:"spec_document" validate:"required"`
	Categories   []string `json:"categories" validate:"required,min=1,max=32,dive,required,max=128"`
}

// Validate checks field presence and shape. Size limits and policy are
// enforced by the service.
func (r *GenerationRequest) Validate() error {
	return requestValidate.Struct(r)
}

// FeedbackRequest is the body of POST /v1/generations/:id/feedback.
// An empty feedback string asks for a plain retry. Size and policy checks
// happen in the service once the session is known to exist.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// GenerationResponse reports the run performed by a Start or Resume.
type GenerationResponse struct {
	SessionID    string        `json:"session_id"`
	Status       task.RunState `json:"status"`
	Variant      task.Variant  `json:"prompt_variant"`
	AttemptCount int           `json:"attempt_count"`
	Artifact     string        `json:"generated_artifact,omitempty"`
	Error        string        `json:"last_error,omitempty"`
	Delta        *Delta        `json:"delta,omitempty"`
}

func newGenerationResponse(r Result) GenerationResponse {
	return GenerationResponse{
		SessionID:    r.SessionID,
		Status:       r.Outcome,
		Variant:      r.Variant,
		AttemptCount: r.AttemptCount,
		Artifact:     r.Artifact,
		Error:        r.ErrorMessage,
		Delta:        r.Delta,
	}
}

// SessionResponse is the stored state of one session. The document and
// the last rendered prompt are reported by size only.
type SessionResponse struct {
	SessionID           string        `json:"session_id"`
	SpecDocumentBytes   int           `json:"spec_document_bytes"`
	RequestedCategories []string      `json:"requested_categories"`
	FeedbackHistory     []string      `json:"feedback_history"`
	AttemptCount        int           `json:"attempt_count"`
	RunState            task.RunState `json:"run_state"`
	Variant             task.Variant  `json:"prompt_variant"`
	RenderedPromptBytes int           `json:"rendered_prompt_bytes"`
	Artifact            string        `json:"generated_artifact,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

func newSessionResponse(id string, s task.State) SessionResponse {
	return SessionResponse{
		SessionID:           id,
		SpecDocumentBytes:   len(s.SpecDocument),
		RequestedCategories: s.RequestedCategories,
		FeedbackHistory:     s.FeedbackHistory,
		AttemptCount:        s.AttemptCount,
		RunState:            s.RunState,
		Variant:             s.Variant,
		RenderedPromptBytes: len(s.RenderedPrompt),
		Artifact:            s.GeneratedArtifact,
		LastError:           s.LastError,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

// SessionListResponse is the body of GET /v1/generations.
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`

	// SessionID is set when a session exists despite the error, so the
	// caller can resume it.
	SessionID string `json:"session_id,omitempty"`

	// Findings lists policy matches without the matched text.
	Findings []policy.Finding `json:"findings,omitempty"`

	// Result carries the failed run for GENERATION_FAILED.
	Result *GenerationResponse `json:"result,omitempty"`
}
