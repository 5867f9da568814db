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

import "errors"

var (
	// ErrInvalidTransition indicates an illegal run state change.
	ErrInvalidTransition = errors.New("invalid run state transition")

	// ErrInvariantViolation indicates the snapshot handed to Run, or the one
	// Run produced, breaks a task invariant. It signals a programming
	// defect, never bad user input.
	ErrInvariantViolation = errors.New("task invariant violated")

	// ErrRunCancelled is returned when the caller's context ended while the
	// generation call was outstanding. The returned snapshot is the input
	// snapshot and must not be persisted.
	ErrRunCancelled = errors.New("run cancelled by caller")

	// ErrUnusableOutput is recorded when the backend answered with nothing
	// left after normalization.
	ErrUnusableOutput = errors.New("generation returned no usable output")
)
