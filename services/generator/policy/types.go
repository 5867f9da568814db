// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

type classificationFile struct {
	Classifications []Classification `yaml:"classifications"`
}

type Classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

type Pattern struct {
	ID          string          `yaml:"id"`
	Description string          `yaml:"description"`
	Regex       string          `yaml:"regex"`
	Confidence  ConfidenceLevel `yaml:"confidence"`
	compiled    *regexp.Regexp
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch level := ConfidenceLevel(s); level {
	case High, Medium, Low:
		*c = level
		return nil
	default:
		return fmt.Errorf("invalid value for confidence: %q", s)
	}
}

func (f *classificationFile) compile() error {
	for i := range f.Classifications {
		c := &f.Classifications[i]
		if c.Name == "" {
			return fmt.Errorf("classification %d has no name", i)
		}
		for j := range c.Patterns {
			p := &c.Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return fmt.Errorf("compile pattern %s: %w", p.ID, err)
			}
			p.compiled = re
		}
	}
	return nil
}

func (f *classificationFile) sortByPriority() {
	sort.SliceStable(f.Classifications, func(i, j int) bool {
		return f.Classifications[i].Priority > f.Classifications[j].Priority
	})
}

// Finding is one pattern match. The matched text itself is not kept so
// findings can be logged and returned to clients.
type Finding struct {
	LineNumber     int             `json:"line_number"`
	Classification string          `json:"classification"`
	PatternID      string          `json:"pattern_id"`
	Description    string          `json:"description"`
	Confidence     ConfidenceLevel `json:"confidence"`
}
