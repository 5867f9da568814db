// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator is the boundary of the SoapUI generation workflow.
//
// Service validates input, gates it through the policy engine, runs the
// workflow engine and persists the resulting snapshot in a session store.
// Start opens a session with a first-pass run; Resume appends feedback and
// runs again on the stored snapshot. handlers.go exposes the same
// operations over HTTP.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/soapgen/services/generator/observability"
	"github.com/AleutianAI/soapgen/services/generator/policy"
	"github.com/AleutianAI/soapgen/services/generator/session"
	"github.com/AleutianAI/soapgen/services/generator/task"
	"github.com/AleutianAI/soapgen/services/generator/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSpecBytes caps an uploaded specification document.
const DefaultMaxSpecBytes = 1 << 20

// Operation names used in request metrics.
const (
	OpStart  = "start"
	OpResume = "resume"
	OpGet    = "get"
	OpDelete = "delete"
	OpList   = "list"
)

// Runner executes one workflow run over a snapshot.
type Runner interface {
	Run(ctx context.Context, s task.State) (task.State, error)
}

// Result describes the run performed by Start or Resume.
type Result struct {
	SessionID    string
	Outcome      task.RunState
	Variant      task.Variant
	AttemptCount int
	Artifact     string
	ErrorMessage string

	// Delta compares Artifact with the artifact stored before a successful
	// Resume. Nil for Start and for failed runs.
	Delta *Delta
}

// Err returns a *GenerationFailedError when the run failed.
func (r Result) Err() error {
	if r.Outcome != task.RunStateFailed {
		return nil
	}
	return &GenerationFailedError{
		SessionID:    r.SessionID,
		AttemptCount: r.AttemptCount,
		Detail:       r.ErrorMessage,
	}
}

func resultFrom(id string, s task.State) Result {
	return Result{
		SessionID:    id,
		Outcome:      s.RunState,
		Variant:      s.Variant,
		AttemptCount: s.AttemptCount,
		Artifact:     s.GeneratedArtifact,
		ErrorMessage: s.LastError,
	}
}

// Service implements the Start / Resume workflow over a session store.
//
// Thread Safety: Safe for concurrent use. Resume calls on one session are
// serialized by the store's Lock; calls on different sessions run in
// parallel.
type Service struct {
	runner       Runner
	store        session.Store
	policy       *policy.Engine
	metrics      *observability.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	maxSpecBytes int
	now          func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPolicy gates documents and feedback through p. Nil disables the gate.
func WithPolicy(p *policy.Engine) ServiceOption {
	return func(s *Service) { s.policy = p }
}

// WithServiceMetrics records request and session metrics.
func WithServiceMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithMaxSpecBytes caps document and feedback size. Non-positive values
// keep DefaultMaxSpecBytes.
func WithMaxSpecBytes(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxSpecBytes = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService wires a runner to a session store.
func NewService(runner Runner, store session.Store, opts ...ServiceOption) *Service {
	s := &Service{
		runner:       runner,
		store:        store,
		logger:       slog.Default(),
		tracer:       otel.Tracer("soapgen.generator"),
		maxSpecBytes: DefaultMaxSpecBytes,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a session with a first-pass generation run.
//
// # Description
//
// Validates the document and categories, runs the policy gate, runs the
// workflow once on a fresh snapshot and stores the result under a new
// session identifier. A failed generation still creates the session so the
// caller can resume it with feedback.
//
// # Inputs
//
//   - ctx: Bounds the whole call. If it ends during generation no session
//     is created.
//   - specDocument: Raw specification text, embedded verbatim in the prompt.
//   - categories: Requested test categories, at least one, in prompt order.
//
// # Outputs
//
//   - Result: Populated whenever a session was created.
//   - error: ErrInvalidInput or *PolicyViolationError before any state
//     exists; *GenerationFailedError (with a valid Result) when the run
//     failed; workflow.ErrRunCancelled joined with the context error when
//     ctx ended mid-run.
func (s *Service) Start(ctx context.Context, specDocument string, categories []string) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "generator.Service.Start")
	defer func() { s.finish(span, OpStart, err) }()

	cats, err := s.validateStart(specDocument, categories)
	if err != nil {
		return Result{}, err
	}
	if err := s.checkPolicy("spec_document", specDocument); err != nil {
		return Result{}, err
	}

	st, err := s.runner.Run(ctx, task.New(specDocument, cats))
	if err != nil {
		return Result{}, s.runError(ctx, err)
	}

	now := s.now()
	st.CreatedAt, st.UpdatedAt = now, now
	id, err := s.store.Create(ctx, st)
	if err != nil {
		return Result{}, fmt.Errorf("create session: %w", err)
	}
	s.metrics.SessionCreated()
	span.SetAttributes(attribute.String("session.id", id))

	s.logger.Info("session started",
		"session_id", id,
		"run_state", st.RunState,
		"categories", len(cats),
		"spec_len", len(specDocument),
	)
	res = resultFrom(id, st)
	return res, res.Err()
}

// Resume appends feedback to a session and regenerates.
//
// # Description
//
// Holds the session lock across load, run and save so concurrent resumes
// of one session each see the previous one's result. An unknown session
// is reported before the feedback is size-checked or policy-scanned. Blank feedback is
// accepted and renders as a plain retry instruction.
//
// # Outputs
//
//   - Result: Populated whenever the run completed, with Delta set for a
//     successful run.
//   - error: ErrSessionNotFound (store untouched), ErrInvalidInput for
//     oversized feedback, *PolicyViolationError,
//     *GenerationFailedError (with a valid Result), or cancellation.
func (s *Service) Resume(ctx context.Context, sessionID, feedback string) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "generator.Service.Resume",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer func() { s.finish(span, OpResume, err) }()

	unlock, err := s.store.Lock(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", workflow.ErrRunCancelled, err)
	}
	defer unlock()

	prev, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("resume session: %w", err)
	}

	// Feedback is only inspected once the session is known to exist.
	if len(feedback) > s.maxSpecBytes {
		return Result{}, fmt.Errorf("%w: feedback exceeds %d bytes", ErrInvalidInput, s.maxSpecBytes)
	}
	if err := s.checkPolicy("feedback", feedback); err != nil {
		return Result{}, err
	}

	st, err := s.runner.Run(ctx, prev.WithFeedback(feedback))
	if err != nil {
		return Result{}, s.runError(ctx, err)
	}
	st.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sessionID, st); err != nil {
		return Result{}, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("session resumed",
		"session_id", sessionID,
		"attempt", st.AttemptCount,
		"run_state", st.RunState,
		"feedback_len", len(feedback),
	)
	res = resultFrom(sessionID, st)
	if st.Succeeded() {
		d := ComputeDelta(prev.GeneratedArtifact, st.GeneratedArtifact)
		res.Delta = &d
	}
	return res, res.Err()
}

// Get returns the stored snapshot of a session.
func (s *Service) Get(ctx context.Context, sessionID string) (st task.State, err error) {
	defer func() { s.metrics.Request(OpGet, requestStatus(err)) }()
	return s.store.Load(ctx, sessionID)
}

// Delete removes a session. It waits for an in-flight Resume of the same
// session to finish first.
func (s *Service) Delete(ctx context.Context, sessionID string) (err error) {
	defer func() { s.metrics.Request(OpDelete, requestStatus(err)) }()

	unlock, err := s.store.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.metrics.SessionDeleted()
	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// List returns every session identifier in ascending order.
func (s *Service) List(ctx context.Context) (ids []string, err error) {
	defer func() { s.metrics.Request(OpList, requestStatus(err)) }()
	return s.store.List(ctx)
}

func (s *Service) validateStart(doc string, categories []string) ([]string, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, fmt.Errorf("%w: spec document is empty", ErrInvalidInput)
	}
	if len(doc) > s.maxSpecBytes {
		return nil, fmt.Errorf("%w: spec document is %d bytes, limit is %d",
			ErrInvalidInput, len(doc), s.maxSpecBytes)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: at least one category is required", ErrInvalidInput)
	}

	cats := make([]string, 0, len(categories))
	seen := make(map[string]bool, len(categories))
	for i, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, fmt.Errorf("%w: category %d is blank", ErrInvalidInput, i)
		}
		if seen[c] {
			return nil, fmt.Errorf("%w: category %q repeated", ErrInvalidInput, c)
		}
		seen[c] = true
		cats = append(cats, c)
	}
	return cats, nil
}

func (s *Service) checkPolicy(field, content string) error {
	if s.policy == nil || content == "" {
		return nil
	}
	findings := s.policy.Check(content)
	if len(findings) == 0 {
		return nil
	}
	perr := &PolicyViolationError{Field: field, Findings: findings}
	s.metrics.PolicyBlocked(perr.Classifications()...)
	s.logger.Warn("input blocked by policy",
		"field", field,
		"findings", len(findings),
		"classifications", perr.Classifications(),
	)
	return perr
}

// runError classifies an engine error. Cancellation carries the context
// error so callers can tell a deadline from an abort.
func (s *Service) runError(ctx context.Context, err error) error {
	if errors.Is(err, workflow.ErrRunCancelled) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", workflow.ErrRunCancelled, ctxErr)
		}
		return err
	}
	s.logger.Error("workflow run aborted", "error", err)
	return fmt.Errorf("run workflow: %w", err)
}

func (s *Service) finish(span trace.Span, op string, err error) {
	status := requestStatus(err)
	s.metrics.Request(op, status)
	span.SetAttributes(attribute.String("request.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	span.End()
}

// requestStatus maps an error to the status label used in metrics.
func requestStatus(err error) string {
	var perr *PolicyViolationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &perr):
		return "policy_violation"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, workflow.ErrRunCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
