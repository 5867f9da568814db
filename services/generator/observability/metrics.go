// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the generator.
//
// # Description
//
// Metrics cover workflow runs (by prompt variant and outcome), generation
// latency, session lifecycle, boundary requests and policy blocks. They are
// registered on an injected registerer so tests use an isolated registry.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// A nil *Metrics is valid and records nothing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "soapgen"

// Outcome labels for runs and requests.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds every generator metric.
type Metrics struct {
	// RunsTotal counts workflow runs.
	// Labels: variant (initial, feedback), outcome (completed, failed, cancelled)
	RunsTotal *prometheus.CounterVec

	// GenerationDurationSeconds measures the generation client call.
	// Labels: variant
	GenerationDurationSeconds *prometheus.HistogramVec

	// RunsInFlight is the number of runs currently waiting on generation.
	RunsInFlight prometheus.Gauge

	// SessionsCreatedTotal counts sessions created by Start.
	SessionsCreatedTotal prometheus.Counter

	// SessionsActive is the number of sessions currently stored.
	SessionsActive prometheus.Gauge

	// RequestsTotal counts boundary operations.
	// Labels: operation (start, resume, get, delete, list), status (ok, error code)
	RequestsTotal *prometheus.CounterVec

	// PolicyBlocksTotal counts inputs rejected by the policy gate.
	// Labels: classification
	PolicyBlocksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg.
//
// # Limitations
//
//   - Panics if called twice with the same registerer (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "workflow",
				Name:      "runs_total",
				Help:      "Total workflow runs by prompt variant and outcome",
			},
			[]string{"variant", "outcome"},
		),
		GenerationDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "workflow",
				Name:      "generation_duration_seconds",
				Help:      "Duration of the generation call in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"variant"},
		),
		RunsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "workflow",
			Name:      "runs_in_flight",
			Help:      "Number of runs waiting on the generation backend",
		}),
		SessionsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total sessions created",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions currently stored",
		}),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total boundary operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		PolicyBlocksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "policy",
				Name:      "blocks_total",
				Help:      "Total inputs rejected by the policy gate",
			},
			[]string{"classification"},
		),
	}
}

// RunStarted marks a run as waiting on generation.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsInFlight.Inc()
}

// RunFinished records the end of a run started with RunStarted.
func (m *Metrics) RunFinished(variant, outcome string, generation time.Duration) {
	if m == nil {
		return
	}
	m.RunsInFlight.Dec()
	m.RunsTotal.WithLabelValues(variant, outcome).Inc()
	m.GenerationDurationSeconds.WithLabelValues(variant).Observe(generation.Seconds())
}

// SessionCreated records a new stored session.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionDeleted records an evicted session.
func (m *Metrics) SessionDeleted() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// Request records one boundary operation.
func (m *Metrics) Request(operation, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
}

// PolicyBlocked records a rejected input per blocking classification.
func (m *Metrics) PolicyBlocked(classifications ...string) {
	if m == nil {
		return
	}
	for _, c := range classifications {
		m.PolicyBlocksTotal.WithLabelValues(c).Inc()
	}
}
