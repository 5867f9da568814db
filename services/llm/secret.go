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
	"bytes"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
)

// APIKey holds a credential in an encrypted memguard enclave. The plaintext
// exists only inside Use.
//
// Thread Safety: Safe for concurrent use.
type APIKey struct {
	enclave *memguard.Enclave
}

// NewAPIKey seals key. The input slice is wiped.
func NewAPIKey(key []byte) (*APIKey, error) {
	key = bytes.TrimSpace(key)
	if len(key) == 0 {
		return nil, ErrMissingAPIKey
	}
	return &APIKey{enclave: memguard.NewEnclave(key)}, nil
}

// LoadAPIKey reads a key from envVar, falling back to the secret file at
// path (container secrets mount).
func LoadAPIKey(envVar, path string) (*APIKey, error) {
	if v := os.Getenv(envVar); v != "" {
		return NewAPIKey([]byte(v))
	}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return NewAPIKey(data)
		}
	}
	return nil, fmt.Errorf("%w: set %s or provide %s", ErrMissingAPIKey, envVar, path)
}

// Use opens the enclave, passes the plaintext to fn, and destroys the
// decrypted buffer when fn returns.
//
// key aliases locked memory that is unmapped once fn returns. It must not
// be retained, stored in a value that outlives fn, or returned; reading it
// afterwards faults the process. Copy it with strings.Clone if a copy has
// to escape.
func (k *APIKey) Use(fn func(key string) error) error {
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("open API key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// PurgeSecrets wipes all protected memory. Call once during shutdown.
func PurgeSecrets() {
	memguard.Purge()
}
