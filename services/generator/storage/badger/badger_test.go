// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestOpen_ReadWrite verifies a committed write is visible to a reader.
func TestOpen_ReadWrite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	require.NoError(t, err)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("key"))
		require.NoError(t, err)
		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestOpen_WithLogger verifies a logger can be attached.
func TestOpen_WithLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

// TestWithTxn_ErrorDiscards verifies fn errors roll the write back.
func TestWithTxn_ErrorDiscards(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte("key"), []byte("value")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("key"))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

// TestWithTxn_CancelledContext verifies no transaction starts on a dead context.
func TestWithTxn_CancelledContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.WithTxn(ctx, func(*badger.Txn) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	err = db.WithReadTxn(ctx, func(*badger.Txn) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

// TestClose_Idempotent verifies double close and use after close.
func TestClose_Idempotent(t *testing.T) {
	db, err := Open(DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	err = db.WithReadTxn(context.Background(), func(*badger.Txn) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

// TestKeys verifies prefix iteration order and prefix stripping.
func TestKeys(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, k := range []string{"session/b", "session/a", "other/x", "session/c"} {
			if err := txn.Set([]byte(k), []byte("{}")); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var keys []string
	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		keys = Keys(txn, []byte("session/"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
