// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens the embedded BadgerDB instance backing the badger
// session store.
//
// The database always runs in in-memory mode. Sessions live as long as the
// process and no longer.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned by transactions started after Close.
var ErrClosed = errors.New("badger database closed")

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Logger receives BadgerDB's internal log lines.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// NumVersionsToKeep is the number of versions to keep per key.
	// Default: 1. Snapshots are always replaced whole.
	NumVersionsToKeep int

	// IndexCacheSize bounds the in-memory index cache in bytes.
	// Zero leaves BadgerDB's default.
	IndexCacheSize int64
}

// DefaultConfig returns the configuration used by the session store.
func DefaultConfig() Config {
	return Config{NumVersionsToKeep: 1}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB wraps an in-memory *badger.DB with context-aware transaction helpers.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// Open creates an in-memory BadgerDB instance.
//
// Description:
//
//	Opens BadgerDB with WithInMemory(true). Nothing touches the disk.
//	Badger's info lines are demoted to debug so routine compaction
//	chatter stays out of the service log.
//
// Inputs:
//
//	cfg - Database configuration. Zero NumVersionsToKeep means 1.
//
// Outputs:
//
//	*DB - Opened database. Caller must call Close().
//	error - Non-nil if BadgerDB fails to start.
func Open(cfg Config) (*DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)

	versions := cfg.NumVersionsToKeep
	if versions <= 0 {
		versions = 1
	}
	opts = opts.WithNumVersionsToKeep(versions)

	if cfg.IndexCacheSize > 0 {
		opts = opts.WithIndexCacheSize(cfg.IndexCacheSize)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the database. Safe to call more than once.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// WithTxn executes fn within a read-write transaction.
//
// Description:
//
//	Opens a read-write transaction, executes fn, and commits if fn
//	returns nil. Discards the transaction otherwise.
//
// Inputs:
//
//	ctx - Checked before the transaction starts.
//	fn - Function to execute within the transaction.
//
// Outputs:
//
//	error - ctx error, ErrClosed, fn's error, or the commit error.
//
// Thread Safety: Safe for concurrent use. Conflicting writers receive
// badger.ErrConflict from the commit.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn executes fn within a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	txn := d.db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// Keys returns every key under prefix in ascending byte order, with the
// prefix stripped.
func Keys(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		keys = append(keys, string(key[len(prefix):]))
	}
	return keys
}
