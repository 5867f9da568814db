// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy classifies text before it is sent to a generation backend
// and decides whether it may be sent at all.
package policy

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultPatterns []byte

// Engine holds compiled classification patterns and the set of
// classifications that block a request.
//
// Thread Safety: Engine is immutable after construction and safe for
// concurrent use.
type Engine struct {
	classifications []Classification
	blocking        map[string]bool
}

// NewEngine loads the embedded patterns. Content matching any of the
// blocking classifications is rejected by Check.
func NewEngine(blocking []string) (*Engine, error) {
	return NewEngineFromYAML(defaultPatterns, blocking)
}

// NewEngineFromYAML builds an engine from a classification document.
//
// # Description
//
// Parses the YAML, compiles every regex and sorts classifications from
// highest to lowest priority. Every blocking name must be a classification
// defined in the document.
//
// # Outputs
//
//   - *Engine: Ready engine.
//   - error: Malformed YAML, invalid regex or unknown blocking name.
func NewEngineFromYAML(data []byte, blocking []string) (*Engine, error) {
	var file classificationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal policy patterns: %w", err)
	}
	if err := file.compile(); err != nil {
		return nil, err
	}
	file.sortByPriority()

	e := &Engine{
		classifications: file.Classifications,
		blocking:        make(map[string]bool, len(blocking)),
	}
	for _, name := range blocking {
		if !e.defines(name) {
			return nil, fmt.Errorf("blocking classification %q is not defined", name)
		}
		e.blocking[name] = true
	}
	return e, nil
}

func (e *Engine) defines(name string) bool {
	for _, c := range e.classifications {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Scan checks every line of content against every pattern and reports
// each match with its 1-based line number.
func (e *Engine) Scan(content string) []Finding {
	var findings []Finding
	for i, line := range strings.Split(content, "\n") {
		for _, c := range e.classifications {
			for _, p := range c.Patterns {
				if !p.compiled.MatchString(line) {
					continue
				}
				findings = append(findings, Finding{
					LineNumber:     i + 1,
					Classification: c.Name,
					PatternID:      p.ID,
					Description:    p.Description,
					Confidence:     p.Confidence,
				})
			}
		}
	}
	return findings
}

// Check scans content and returns only the findings whose classification
// blocks the request. An empty result means the content may be sent.
func (e *Engine) Check(content string) []Finding {
	if len(e.blocking) == 0 {
		return nil
	}
	var blocked []Finding
	for _, f := range e.Scan(content) {
		if e.blocking[f.Classification] {
			blocked = append(blocked, f)
		}
	}
	return blocked
}

// Classifications returns the distinct classification names in findings,
// sorted.
func Classifications(findings []Finding) []string {
	var names []string
	for _, f := range findings {
		if !slices.Contains(names, f.Classification) {
			names = append(names, f.Classification)
		}
	}
	slices.Sort(names)
	return names
}
