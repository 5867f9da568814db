// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/soapgen/services/generator/task"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return b
}

func TestSelectVariant(t *testing.T) {
	s := task.New("<wsdl/>", []string{"happy_path"})
	if got := SelectVariant(s); got != task.VariantInitial {
		t.Errorf("SelectVariant(fresh) = %s, want initial", got)
	}
	if got := SelectVariant(s.WithFeedback("")); got != task.VariantFeedback {
		t.Errorf("SelectVariant(blank feedback) = %s, want feedback", got)
	}
}

func TestRender_Initial(t *testing.T) {
	b := newTestBuilder(t)
	s := task.New(`<definitions name="Calc"/>`, []string{"happy_path", "negative_cases"})

	r, err := b.Render(s)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if r.Variant != task.VariantInitial {
		t.Errorf("Variant = %s, want initial", r.Variant)
	}
	for _, want := range []string{
		`<definitions name="Calc"/>`,
		"happy_path, negative_cases",
		`<con:soapui-project id="{generate_a_uuid}"`,
		`bindingName="{{WSDL_Target_Namespace}}{WSDL_Binding_Name}"`,
		`<con:assertion type="SOAP Fault"`,
		"Do NOT include explanations",
	} {
		if !strings.Contains(r.Text, want) {
			t.Errorf("initial prompt missing %q", want)
		}
	}
	if strings.Contains(r.Text, "User Feedback") {
		t.Error("initial prompt must not contain a feedback section")
	}
}

func TestRender_CategoryOrderPreserved(t *testing.T) {
	b := newTestBuilder(t)
	r, err := b.Render(task.New("<wsdl/>", []string{"zeta", "alpha", "mid"}))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(r.Text, "zeta, alpha, mid") {
		t.Error("categories were not rendered in stored order")
	}
}

func TestRender_FeedbackUsesLatestOnly(t *testing.T) {
	b := newTestBuilder(t)
	s := task.New("<wsdl/>", []string{"happy_path"}).
		WithFeedback("use port 8080").
		WithFeedback("add a negative case")

	r, err := b.Render(s)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if r.Variant != task.VariantFeedback {
		t.Errorf("Variant = %s, want feedback", r.Variant)
	}
	if !strings.Contains(r.Text, `"add a negative case"`) {
		t.Error("feedback prompt missing latest feedback")
	}
	if strings.Contains(r.Text, "use port 8080") {
		t.Error("feedback prompt contains an older feedback entry")
	}
	if !strings.Contains(r.Text, "<wsdl/>") || !strings.Contains(r.Text, "happy_path") {
		t.Error("feedback prompt missing document or categories")
	}
}

func TestRender_BlankFeedback(t *testing.T) {
	b := newTestBuilder(t)
	r, err := b.Render(task.New("<wsdl/>", []string{"happy_path"}).WithFeedback("   "))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(r.Text, EmptyFeedbackText) {
		t.Error("blank feedback did not render the retry instruction")
	}
}

func TestRender_Idempotent(t *testing.T) {
	b := newTestBuilder(t)
	s := task.New("<wsdl>{{.not_a_var}}</wsdl>", []string{"happy_path"}).WithFeedback("again")

	first, err := b.Render(s)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := b.Render(s.Clone())
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if again != first {
			t.Fatal("Render() is not deterministic")
		}
	}
	if !strings.Contains(first.Text, "{{.not_a_var}}") {
		t.Error("template syntax inside the document must be rendered verbatim")
	}
}

func TestRender_IncompleteState(t *testing.T) {
	b := newTestBuilder(t)
	tests := []task.State{
		task.New("", []string{"happy_path"}),
		task.New("<wsdl/>", nil),
	}
	for _, s := range tests {
		if _, err := b.Render(s); !errors.Is(err, ErrIncompleteState) {
			t.Errorf("Render(%+v) error = %v, want ErrIncompleteState", s, err)
		}
	}
}
