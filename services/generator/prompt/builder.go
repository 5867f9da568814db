// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt renders generation instructions from a task snapshot.
//
// Rendering is a pure function of the snapshot: the document, the ordered
// category list and, for the feedback variant, the most recent feedback
// entry. Older feedback entries are kept in the history but never rendered.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/soapgen/services/generator/task"
	"github.com/tmc/langchaingo/prompts"
)

//go:embed templates/*.tmpl templates/soapui/*.xml
var templateFS embed.FS

// CategorySeparator joins the requested categories in rendered text.
const CategorySeparator = ", "

// EmptyFeedbackText replaces a blank feedback entry so a retry after a
// failed run still carries an explicit instruction.
const EmptyFeedbackText = "No specific feedback was given. Regenerate the project and correct any problems with the previous attempt."

// ErrIncompleteState is returned when the snapshot lacks the document or
// the category list.
var ErrIncompleteState = errors.New("task state is missing required fields")

// Rendered is the output of a single render.
type Rendered struct {
	Variant task.Variant
	Text    string
}

// Builder renders the initial and feedback prompts.
//
// Thread Safety: Safe for concurrent use. Builder holds only parsed
// templates and is never mutated after NewBuilder returns.
type Builder struct {
	initial  prompts.PromptTemplate
	feedback prompts.PromptTemplate
}

// NewBuilder loads the embedded templates.
//
// # Description
//
// Reads the two instruction templates and the SoapUI skeletons from the
// binary. The skeletons are bound as partial variables of the initial
// template. A probe render runs before returning so a broken template
// fails at startup instead of on the first request.
//
// # Outputs
//
//   - *Builder: Ready to render.
//   - error: Non-nil if a template is missing or does not render.
func NewBuilder() (*Builder, error) {
	initialText, err := templateFS.ReadFile("templates/initial.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read initial template: %w", err)
	}
	feedbackText, err := templateFS.ReadFile("templates/feedback.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read feedback template: %w", err)
	}

	partials := make(map[string]any, 4)
	for key, file := range map[string]string{
		"project_template":       "templates/soapui/project.xml",
		"suite_template":         "templates/soapui/suite.xml",
		"happy_step_template":    "templates/soapui/happy_step.xml",
		"negative_step_template": "templates/soapui/negative_step.xml",
	} {
		data, err := templateFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		partials[key] = strings.TrimRight(string(data), "\n")
	}

	initial := prompts.NewPromptTemplate(string(initialText), []string{"categories", "spec_document"})
	initial.PartialVariables = partials

	b := &Builder{
		initial:  initial,
		feedback: prompts.NewPromptTemplate(string(feedbackText), []string{"feedback", "categories", "spec_document"}),
	}

	probe := task.New("<definitions/>", []string{"happy_path"})
	if _, err := b.Render(probe); err != nil {
		return nil, fmt.Errorf("probe initial template: %w", err)
	}
	if _, err := b.Render(probe.WithFeedback("probe")); err != nil {
		return nil, fmt.Errorf("probe feedback template: %w", err)
	}
	return b, nil
}

// SelectVariant picks the prompt variant for the next run. It depends only
// on whether any feedback has been recorded.
func SelectVariant(s task.State) task.Variant {
	switch len(s.FeedbackHistory) {
	case 0:
		return task.VariantInitial
	default:
		return task.VariantFeedback
	}
}

// Render produces the instruction text for the next run of s.
//
// Identical snapshots always render to identical text.
func (b *Builder) Render(s task.State) (Rendered, error) {
	if s.SpecDocument == "" || len(s.RequestedCategories) == 0 {
		return Rendered{}, ErrIncompleteState
	}

	values := map[string]any{
		"categories":    strings.Join(s.RequestedCategories, CategorySeparator),
		"spec_document": s.SpecDocument,
	}

	variant := SelectVariant(s)
	tmpl := b.initial
	if variant == task.VariantFeedback {
		latest, _ := s.LatestFeedback()
		if strings.TrimSpace(latest) == "" {
			latest = EmptyFeedbackText
		}
		values["feedback"] = latest
		tmpl = b.feedback
	}

	text, err := tmpl.Format(values)
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s prompt: %w", variant, err)
	}
	return Rendered{Variant: variant, Text: text}, nil
}
