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
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/soapgen/services/generator/task"
	"github.com/google/uuid"
)

// InMemoryStore keeps snapshots in a map.
//
// Thread Safety: InMemoryStore is safe for concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]task.State
	locks    *keyedLocker
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]task.State),
		locks:    newKeyedLocker(),
	}
}

// Create implements Store.
func (s *InMemoryStore) Create(ctx context.Context, st task.State) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	if _, exists := s.sessions[id]; exists {
		return "", fmt.Errorf("session id collision: %s", id)
	}
	s.sessions[id] = st.Clone()
	return id, nil
}

// Load implements Store.
func (s *InMemoryStore) Load(ctx context.Context, id string) (task.State, error) {
	if err := ctx.Err(); err != nil {
		return task.State{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return task.State{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return st.Clone(), nil
}

// Save implements Store.
func (s *InMemoryStore) Save(ctx context.Context, id string, st task.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := prev.SameIdentity(st); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	s.sessions[id] = st.Clone()
	return nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// List implements Store.
func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids, nil
}

// Lock implements Store.
func (s *InMemoryStore) Lock(ctx context.Context, id string) (func(), error) {
	return s.locks.Lock(ctx, id)
}

// Close implements Store. The map is left to the garbage collector.
func (s *InMemoryStore) Close() error {
	return nil
}
