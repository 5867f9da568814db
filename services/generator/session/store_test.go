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
	"sort"
	"sync"
	"testing"
	"time"

	badgerstore "github.com/AleutianAI/soapgen/services/generator/storage/badger"
	"github.com/AleutianAI/soapgen/services/generator/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	bs, err := NewBadgerStore(badgerstore.DefaultConfig())
	require.NoError(t, err)
	stores := map[string]Store{
		BackendMemory: NewInMemoryStore(),
		BackendBadger: bs,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func completedState() task.State {
	st := task.New("<wsdl/>", []string{"happy_path", "negative"})
	st.AttemptCount = 1
	st.RunState = task.RunStateCompleted
	st.Variant = task.VariantInitial
	st.RenderedPrompt = "prompt"
	st.GeneratedArtifact = "<project/>"
	return st
}

func TestStore_CreateLoad(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := completedState()

			id, err := store.Create(ctx, st)
			require.NoError(t, err)
			_, err = uuid.Parse(id)
			require.NoError(t, err, "identifier should be a UUID")

			got, err := store.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, st.SpecDocument, got.SpecDocument)
			assert.Equal(t, st.RequestedCategories, got.RequestedCategories)
			assert.Equal(t, []string{}, got.FeedbackHistory)
			assert.Equal(t, 1, got.AttemptCount)
			assert.Equal(t, task.RunStateCompleted, got.RunState)
			assert.Equal(t, "<project/>", got.GeneratedArtifact)
		})
	}
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := completedState()
			id, err := store.Create(ctx, st)
			require.NoError(t, err)

			// Mutating the caller's slice must not reach the store.
			st.RequestedCategories[0] = "mutated"

			got, err := store.Load(ctx, id)
			require.NoError(t, err)
			got.RequestedCategories[0] = "also mutated"

			again, err := store.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []string{"happy_path", "negative"}, again.RequestedCategories)
		})
	}
}

func TestStore_DistinctIdentifiers(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seen := make(map[string]bool)
			for i := 0; i < 20; i++ {
				id, err := store.Create(ctx, completedState())
				require.NoError(t, err)
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
			}
		})
	}
}

func TestStore_LoadUnknown(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := store.Create(ctx, completedState())
			require.NoError(t, err)

			prev, err := store.Load(ctx, id)
			require.NoError(t, err)
			next := prev.WithFeedback("add a negative case")
			next.AttemptCount = 2
			next.RunState = task.RunStateFailed
			next.Variant = task.VariantFeedback
			next.GeneratedArtifact = ""
			next.LastError = "generation failed: boom"

			require.NoError(t, store.Save(ctx, id, next))

			got, err := store.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []string{"add a negative case"}, got.FeedbackHistory)
			assert.Equal(t, 2, got.AttemptCount)
			assert.Equal(t, task.RunStateFailed, got.RunState)
			assert.Empty(t, got.GeneratedArtifact)
			assert.Equal(t, "generation failed: boom", got.LastError)
		})
	}
}

func TestStore_SaveUnknown(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Save(context.Background(), "missing", completedState())
			assert.ErrorIs(t, err, ErrSessionNotFound)

			ids, err := store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestStore_SaveRejectsImmutableChanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*task.State)
	}{
		{"document", func(s *task.State) { s.SpecDocument = "<other/>" }},
		{"category order", func(s *task.State) {
			s.RequestedCategories = []string{"negative", "happy_path"}
		}},
		{"category added", func(s *task.State) {
			s.RequestedCategories = append(s.RequestedCategories, "security")
		}},
		{"attempts decreased", func(s *task.State) { s.AttemptCount = 0 }},
	}

	for name, store := range backends(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				ctx := context.Background()
				id, err := store.Create(ctx, completedState())
				require.NoError(t, err)

				next, err := store.Load(ctx, id)
				require.NoError(t, err)
				tt.mutate(&next)

				err = store.Save(ctx, id, next)
				assert.ErrorIs(t, err, ErrImmutableField)

				got, err := store.Load(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, completedState().SpecDocument, got.SpecDocument)
				assert.Equal(t, completedState().RequestedCategories, got.RequestedCategories)
				assert.Equal(t, 1, got.AttemptCount)
			})
		}
	}
}

func TestStore_DeleteAndList(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for i := 0; i < 3; i++ {
				id, err := store.Create(ctx, completedState())
				require.NoError(t, err)
				ids = append(ids, id)
			}
			sort.Strings(ids)

			listed, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, ids, listed)

			require.NoError(t, store.Delete(ctx, ids[1]))
			assert.ErrorIs(t, store.Delete(ctx, ids[1]), ErrSessionNotFound)

			_, err = store.Load(ctx, ids[1])
			assert.ErrorIs(t, err, ErrSessionNotFound)

			listed, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{ids[0], ids[2]}, listed)
		})
	}
}

func TestStore_CancelledContext(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := store.Create(ctx, completedState())
			assert.ErrorIs(t, err, context.Canceled)

			ids, err := store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

// TestStore_LockSerializesReadModifyWrite runs many concurrent
// load-modify-save cycles on one session under Lock and checks no update
// is lost.
func TestStore_LockSerializesReadModifyWrite(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := store.Create(ctx, completedState())
			require.NoError(t, err)

			const workers = 10
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := store.Lock(ctx, id)
					if err != nil {
						errs <- err
						return
					}
					defer unlock()

					st, err := store.Load(ctx, id)
					if err != nil {
						errs <- err
						return
					}
					next := st.WithFeedback("more")
					next.AttemptCount++
					time.Sleep(time.Millisecond)
					errs <- store.Save(ctx, id, next)
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			got, err := store.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 1+workers, got.AttemptCount)
			assert.Len(t, got.FeedbackHistory, workers)
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(BackendBadger, nil)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
