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
	"encoding/json"
	"errors"
	"fmt"

	badgerstore "github.com/AleutianAI/soapgen/services/generator/storage/badger"
	"github.com/AleutianAI/soapgen/services/generator/task"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// keyPrefix namespaces session snapshots inside the database.
const keyPrefix = "session/"

func sessionKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// BadgerStore keeps JSON-encoded snapshots in an in-memory BadgerDB.
//
// Each operation runs in a single badger transaction. Concurrent writers
// to the same key surface badger.ErrConflict; the service layer avoids this
// by holding Lock around every load-run-save.
//
// Thread Safety: BadgerStore is safe for concurrent use.
type BadgerStore struct {
	db    *badgerstore.DB
	locks *keyedLocker
}

// NewBadgerStore opens an in-memory database and wraps it as a Store.
// The store owns the database and closes it in Close.
func NewBadgerStore(cfg badgerstore.Config) (*BadgerStore, error) {
	db, err := badgerstore.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, locks: newKeyedLocker()}, nil
}

// Create implements Store.
func (s *BadgerStore) Create(ctx context.Context, st task.State) (string, error) {
	id := uuid.NewString()
	value, err := json.Marshal(st.Clone())
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(id)); err == nil {
			return fmt.Errorf("session id collision: %s", id)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(sessionKey(id), value)
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, id string) (task.State, error) {
	var st task.State
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		st, err = readState(txn, id)
		return err
	})
	if err != nil {
		return task.State{}, err
	}
	return st, nil
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, id string, st task.State) error {
	value, err := json.Marshal(st.Clone())
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		prev, err := readState(txn, id)
		if err != nil {
			return err
		}
		if err := prev.SameIdentity(st); err != nil {
			return fmt.Errorf("save session %s: %w", id, err)
		}
		return txn.Set(sessionKey(id), value)
	})
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
			}
			return err
		}
		return txn.Delete(sessionKey(id))
	})
}

// List implements Store. Badger iterates keys in byte order, which is
// ascending string order for the ASCII identifiers Create generates.
func (s *BadgerStore) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		ids = append(ids, badgerstore.Keys(txn, []byte(keyPrefix))...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Lock implements Store.
func (s *BadgerStore) Lock(ctx context.Context, id string) (func(), error) {
	return s.locks.Lock(ctx, id)
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readState(txn *badger.Txn, id string) (task.State, error) {
	item, err := txn.Get(sessionKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return task.State{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return task.State{}, fmt.Errorf("read session %s: %w", id, err)
	}

	var st task.State
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &st)
	})
	if err != nil {
		return task.State{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if st.FeedbackHistory == nil {
		st.FeedbackHistory = []string{}
	}
	return st, nil
}
