// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package task defines the state threaded through every generation run.
package task

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// RunState is the state of a single workflow run.
type RunState string

const (
	// RunStateSelectingPrompt chooses the prompt variant and renders it.
	RunStateSelectingPrompt RunState = "SELECTING_PROMPT"

	// RunStateGenerating is waiting on the generation client.
	RunStateGenerating RunState = "GENERATING"

	// RunStateCompleted means the run produced a usable artifact.
	RunStateCompleted RunState = "COMPLETED"

	// RunStateFailed means the generation call failed or returned nothing usable.
	RunStateFailed RunState = "FAILED"
)

// IsTerminal returns true for states that end a run.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// Variant names the prompt form used for a run.
type Variant string

const (
	// VariantInitial is the first-pass prompt built from the document alone.
	VariantInitial Variant = "initial"

	// VariantFeedback regenerates the project using the latest feedback entry.
	VariantFeedback Variant = "feedback"
)

// ErrImmutableField is returned when a snapshot changes the document or
// the category list of an existing session.
var ErrImmutableField = errors.New("immutable task field changed")

// State is the full snapshot of one generation task.
//
// SpecDocument and RequestedCategories are fixed at creation. FeedbackHistory
// only grows. The remaining fields describe the most recent run.
type State struct {
	SpecDocument        string   `json:"spec_document"`
	RequestedCategories []string `json:"requested_categories"`
	FeedbackHistory     []string `json:"feedback_history"`

	RenderedPrompt    string `json:"rendered_prompt"`
	GeneratedArtifact string `json:"generated_artifact"`
	LastError         string `json:"last_error"`

	AttemptCount int      `json:"attempt_count"`
	RunState     RunState `json:"run_state,omitempty"`
	Variant      Variant  `json:"prompt_variant,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh state for a document and its categories.
// The category slice is copied.
func New(specDocument string, categories []string) State {
	return State{
		SpecDocument:        specDocument,
		RequestedCategories: slices.Clone(categories),
		FeedbackHistory:     []string{},
	}
}

// Clone returns a deep copy. Snapshots handed across component boundaries
// never share slices.
func (s State) Clone() State {
	out := s
	out.RequestedCategories = slices.Clone(s.RequestedCategories)
	out.FeedbackHistory = slices.Clone(s.FeedbackHistory)
	if out.FeedbackHistory == nil {
		out.FeedbackHistory = []string{}
	}
	return out
}

// LatestFeedback returns the most recent feedback entry and whether one exists.
func (s State) LatestFeedback() (string, bool) {
	if len(s.FeedbackHistory) == 0 {
		return "", false
	}
	return s.FeedbackHistory[len(s.FeedbackHistory)-1], true
}

// WithFeedback returns a copy with feedback appended to the history.
func (s State) WithFeedback(feedback string) State {
	out := s.Clone()
	out.FeedbackHistory = append(out.FeedbackHistory, feedback)
	return out
}

// Succeeded reports whether the most recent run produced an artifact.
func (s State) Succeeded() bool {
	return s.RunState == RunStateCompleted
}

// ReadyToRun checks the invariants that must hold before a run starts.
func (s State) ReadyToRun() error {
	if s.SpecDocument == "" {
		return errors.New("spec document is empty")
	}
	if len(s.RequestedCategories) == 0 {
		return errors.New("no categories requested")
	}
	if len(s.FeedbackHistory) != s.AttemptCount {
		return fmt.Errorf("feedback history has %d entries, attempt count is %d",
			len(s.FeedbackHistory), s.AttemptCount)
	}
	return nil
}

// CheckCompleted checks the invariants that must hold after a run ends.
func (s State) CheckCompleted() error {
	if !s.RunState.IsTerminal() {
		return fmt.Errorf("run state %q is not terminal", s.RunState)
	}
	if len(s.FeedbackHistory) != s.AttemptCount-1 {
		return fmt.Errorf("feedback history has %d entries, attempt count is %d",
			len(s.FeedbackHistory), s.AttemptCount)
	}
	hasArtifact := s.GeneratedArtifact != ""
	hasError := s.LastError != ""
	if hasArtifact == hasError {
		return fmt.Errorf("exactly one of artifact and last error must be set (artifact=%t, error=%t)",
			hasArtifact, hasError)
	}
	return nil
}

// SameIdentity returns ErrImmutableField when next changes the document or
// the ordered category list of s.
func (s State) SameIdentity(next State) error {
	if s.SpecDocument != next.SpecDocument {
		return fmt.Errorf("%w: spec_document", ErrImmutableField)
	}
	if !slices.Equal(s.RequestedCategories, next.RequestedCategories) {
		return fmt.Errorf("%w: requested_categories", ErrImmutableField)
	}
	if len(next.FeedbackHistory) < len(s.FeedbackHistory) {
		return fmt.Errorf("%w: feedback_history shrank from %d to %d entries",
			ErrImmutableField, len(s.FeedbackHistory), len(next.FeedbackHistory))
	}
	if !slices.Equal(s.FeedbackHistory, next.FeedbackHistory[:len(s.FeedbackHistory)]) {
		return fmt.Errorf("%w: feedback_history rewritten", ErrImmutableField)
	}
	if next.AttemptCount < s.AttemptCount {
		return fmt.Errorf("%w: attempt_count decreased from %d to %d",
			ErrImmutableField, s.AttemptCount, next.AttemptCount)
	}
	return nil
}
