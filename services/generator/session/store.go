// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session persists task snapshots between generation requests.
//
// A store maps an opaque session identifier to the latest task.State for
// that session. Snapshots are created on the first run, replaced whole on
// every later run and removed only by an explicit Delete. Lock gives
// callers mutual exclusion per identifier around load, run and save.
package session

import (
	"context"

	"github.com/AleutianAI/soapgen/services/generator/task"
)

// Store persists task snapshots keyed by session identifier.
//
// Thread Safety: Implementations are safe for concurrent use. Create,
// Load, Save and Delete are each atomic for one identifier. They do not
// serialize a load-run-save sequence; callers hold Lock for that.
type Store interface {
	// Create stores s under a fresh random identifier and returns it.
	Create(ctx context.Context, s task.State) (string, error)

	// Load returns a copy of the stored snapshot or ErrSessionNotFound.
	Load(ctx context.Context, id string) (task.State, error)

	// Save replaces the stored snapshot. It returns ErrSessionNotFound for
	// an unknown identifier and ErrImmutableField when s changes the
	// document, the category list or rewrites feedback history.
	Save(ctx context.Context, id string, s task.State) error

	// Delete removes a session or returns ErrSessionNotFound.
	Delete(ctx context.Context, id string) error

	// List returns every stored identifier in ascending order.
	List(ctx context.Context) ([]string, error)

	// Lock blocks until the caller holds the identifier's lock or ctx ends.
	// The returned function releases it and may be called more than once.
	Lock(ctx context.Context, id string) (func(), error)

	// Close releases backend resources.
	Close() error
}
