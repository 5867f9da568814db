// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBackend is returned by NewClient for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown LLM backend")

	// ErrMissingAPIKey is returned when a cloud backend has no API key.
	ErrMissingAPIKey = errors.New("API key not configured")

	// ErrModelNotFound is returned when the server does not have the model.
	ErrModelNotFound = errors.New("model not found")

	// ErrEmptyResponse is returned when the backend answered without any text.
	ErrEmptyResponse = errors.New("backend returned no content")
)

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 512

// StatusError is a non-200 response from a backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Backend, e.StatusCode, e.Body)
}

func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "..."
}
