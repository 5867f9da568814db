// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow drives one generation run over a task snapshot.
//
// A run selects the prompt variant, renders it, calls the generation
// client exactly once and records the outcome. The engine keeps no
// per-session state; everything a later run needs travels in the snapshot.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/soapgen/services/generator/observability"
	"github.com/AleutianAI/soapgen/services/generator/prompt"
	"github.com/AleutianAI/soapgen/services/generator/task"
	"github.com/AleutianAI/soapgen/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Renderer produces the prompt for the next run of a snapshot.
type Renderer interface {
	Render(s task.State) (prompt.Rendered, error)
}

// Engine executes workflow runs.
//
// Thread Safety: Safe for concurrent use. Concurrent runs over the same
// session must be serialized by the caller.
type Engine struct {
	renderer Renderer
	client   llm.LLMClient
	params   llm.GenerationParams
	timeout  time.Duration
	machine  *StateMachine
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithGenerationParams sets the sampling parameters sent on every call.
func WithGenerationParams(p llm.GenerationParams) Option {
	return func(e *Engine) { e.params = p }
}

// WithGenerationTimeout bounds each generation call. Zero leaves only the
// caller's context in charge.
func WithGenerationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine around a renderer and a generation client.
func NewEngine(renderer Renderer, client llm.LLMClient, opts ...Option) *Engine {
	e := &Engine{
		renderer: renderer,
		client:   client,
		machine:  NewStateMachine(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("soapgen.workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one run over s and returns the resulting snapshot.
//
// # Description
//
// SELECTING_PROMPT picks the variant from the feedback history, increments
// AttemptCount and stores the rendered prompt. GENERATING calls the client
// once. Usable output is normalized into GeneratedArtifact and clears
// LastError (COMPLETED); a failed call or unusable output clears the
// artifact and records LastError (FAILED). A FAILED run is a normal
// result, not an error.
//
// # Inputs
//
//   - ctx: Caller context. Cancelling it abandons the run.
//   - s: Snapshot with len(FeedbackHistory) == AttemptCount.
//
// # Outputs
//
//   - task.State: The snapshot after the run. Never aliases s.
//   - error: ErrInvariantViolation for an inconsistent input snapshot,
//     ErrRunCancelled when ctx ended during generation. In both cases the
//     returned snapshot is s unchanged.
func (e *Engine) Run(ctx context.Context, s task.State) (task.State, error) {
	if err := s.ReadyToRun(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	next := s.Clone()
	if err := e.machine.Transition(&next, task.RunStateSelectingPrompt); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	rendered, err := e.renderer.Render(next)
	if err != nil {
		return s, fmt.Errorf("render prompt: %w", err)
	}
	next.AttemptCount++
	next.Variant = rendered.Variant
	next.RenderedPrompt = rendered.Text

	ctx, span := e.tracer.Start(ctx, "workflow.Engine.Run", trace.WithAttributes(
		attribute.Int("workflow.attempt", next.AttemptCount),
		attribute.String("workflow.variant", string(next.Variant)),
		attribute.Int("workflow.prompt_len", len(next.RenderedPrompt)),
	))
	defer span.End()

	if err := e.machine.Transition(&next, task.RunStateGenerating); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	output, elapsed, genErr := e.generate(ctx, next.RenderedPrompt)

	if ctxErr := ctx.Err(); ctxErr != nil {
		e.metrics.RunFinished(string(next.Variant), observability.OutcomeCancelled, elapsed)
		span.SetStatus(codes.Error, "cancelled")
		e.logger.Warn("workflow run cancelled",
			"attempt", next.AttemptCount, "variant", next.Variant, "error", ctxErr)
		return s, fmt.Errorf("%w: %v", ErrRunCancelled, ctxErr)
	}

	var artifact string
	if genErr == nil {
		artifact = NormalizeOutput(output)
		if artifact == "" {
			genErr = ErrUnusableOutput
		}
	}

	outcome := observability.OutcomeCompleted
	if genErr != nil {
		outcome = observability.OutcomeFailed
		next.GeneratedArtifact = ""
		next.LastError = e.describeFailure(genErr)
		err = e.machine.Transition(&next, task.RunStateFailed)
		span.RecordError(genErr)
		span.SetStatus(codes.Error, next.LastError)
	} else {
		next.GeneratedArtifact = artifact
		next.LastError = ""
		err = e.machine.Transition(&next, task.RunStateCompleted)
	}
	e.metrics.RunFinished(string(next.Variant), outcome, elapsed)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	if err := next.CheckCompleted(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	span.SetAttributes(attribute.String("workflow.run_state", string(next.RunState)))
	e.logger.Info("workflow run finished",
		"attempt", next.AttemptCount,
		"variant", next.Variant,
		"run_state", next.RunState,
		"artifact_len", len(next.GeneratedArtifact),
		"duration_ms", elapsed.Milliseconds(),
	)
	return next, nil
}

// generate performs the single client call under the generation timeout.
func (e *Engine) generate(ctx context.Context, text string) (string, time.Duration, error) {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.metrics.RunStarted()
	start := time.Now()
	out, err := e.client.Generate(callCtx, text, e.params)
	return out, time.Since(start), err
}

func (e *Engine) describeFailure(err error) string {
	switch {
	case e.timeout > 0 && errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("generation timed out after %s", e.timeout)
	default:
		return "generation failed: " + err.Error()
	}
}
