// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"errors"

	"github.com/AleutianAI/soapgen/services/generator/task"
)

var (
	// ErrSessionNotFound indicates no snapshot exists for the identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrImmutableField is returned by Save when a snapshot would change a
	// field fixed at creation.
	ErrImmutableField = task.ErrImmutableField

	// ErrUnknownBackend indicates an unsupported session.backend value.
	ErrUnknownBackend = errors.New("unknown session backend")
)
