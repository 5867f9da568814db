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
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Delta summarizes how a regenerated artifact differs from the previous
// one, counted in lines.
type Delta struct {
	LinesAdded     int `json:"lines_added"`
	LinesRemoved   int `json:"lines_removed"`
	LinesUnchanged int `json:"lines_unchanged"`
}

// Changed reports whether any line was added or removed.
func (d Delta) Changed() bool {
	return d.LinesAdded > 0 || d.LinesRemoved > 0
}

// ComputeDelta diffs prev and next line by line.
func ComputeDelta(prev, next string) Delta {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(prev, next)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var d Delta
	for _, diff := range diffs {
		n := countLines(diff.Text)
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			d.LinesAdded += n
		case diffmatchpatch.DiffDelete:
			d.LinesRemoved += n
		case diffmatchpatch.DiffEqual:
			d.LinesUnchanged += n
		}
	}
	return d
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
