// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RunLifecycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RunStarted()
	if got := testutil.ToFloat64(m.RunsInFlight); got != 1 {
		t.Errorf("RunsInFlight = %v, want 1", got)
	}

	m.RunFinished("initial", OutcomeCompleted, 2*time.Second)
	if got := testutil.ToFloat64(m.RunsInFlight); got != 0 {
		t.Errorf("RunsInFlight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("initial", OutcomeCompleted)); got != 1 {
		t.Errorf("RunsTotal{initial,completed} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.GenerationDurationSeconds); got != 1 {
		t.Errorf("GenerationDurationSeconds series = %d, want 1", got)
	}
}

func TestMetrics_Sessions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SessionCreated()
	m.SessionCreated()
	m.SessionDeleted()

	if got := testutil.ToFloat64(m.SessionsCreatedTotal); got != 2 {
		t.Errorf("SessionsCreatedTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("SessionsActive = %v, want 1", got)
	}
}

func TestMetrics_RequestsAndPolicy(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Request("resume", "SESSION_NOT_FOUND")
	m.PolicyBlocked("secret", "secret")

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("resume", "SESSION_NOT_FOUND")); got != 1 {
		t.Errorf("RequestsTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PolicyBlocksTotal.WithLabelValues("secret")); got != 2 {
		t.Errorf("PolicyBlocksTotal = %v, want 2", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RunStarted()
	m.RunFinished("initial", OutcomeFailed, time.Second)
	m.SessionCreated()
	m.SessionDeleted()
	m.Request("start", "ok")
	m.PolicyBlocked("secret")
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewMetrics(reg)
}
