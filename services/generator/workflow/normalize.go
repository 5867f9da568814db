// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import "strings"

// NormalizeOutput trims surrounding whitespace and unwraps a single
// markdown code fence (with or without a language tag) around the whole
// answer. Anything else is returned trimmed but otherwise untouched.
func NormalizeOutput(raw string) string {
	out := strings.TrimSpace(raw)
	if !strings.HasPrefix(out, "```") || !strings.HasSuffix(out, "```") || len(out) < 6 {
		return out
	}

	body := strings.TrimSuffix(out, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return out
	}
	// The opening fence line may carry a language tag, e.g. ```xml.
	if tag := strings.TrimSpace(body[3:nl]); strings.ContainsAny(tag, " <") {
		return out
	}
	return strings.TrimSpace(body[nl+1:])
}
