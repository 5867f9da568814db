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
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/soapgen/services/generator/policy"
	"github.com/AleutianAI/soapgen/services/generator/session"
)

var (
	// ErrInvalidInput indicates a request rejected before any session
	// state was created or loaded.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotFound indicates the session identifier is unknown.
	ErrSessionNotFound = session.ErrSessionNotFound

	// ErrGenerationFailed is matched by every *GenerationFailedError.
	ErrGenerationFailed = errors.New("generation failed")
)

// GenerationFailedError reports a run that ended in FAILED. The session
// exists and holds the failed snapshot, so the caller may resume it.
type GenerationFailedError struct {
	SessionID    string
	AttemptCount int
	Detail       string
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("session %s attempt %d: %s", e.SessionID, e.AttemptCount, e.Detail)
}

// Unwrap lets errors.Is match ErrGenerationFailed.
func (e *GenerationFailedError) Unwrap() error {
	return ErrGenerationFailed
}

// PolicyViolationError reports input that matched a blocking
// classification. It wraps ErrInvalidInput.
type PolicyViolationError struct {
	// Field is the rejected input: "spec_document" or "feedback".
	Field    string
	Findings []policy.Finding
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("%s contains %s data (%d findings)",
		e.Field, strings.Join(e.Classifications(), ", "), len(e.Findings))
}

func (e *PolicyViolationError) Unwrap() error {
	return ErrInvalidInput
}

// Classifications returns the distinct blocking classifications found.
func (e *PolicyViolationError) Classifications() []string {
	return policy.Classifications(e.Findings)
}
