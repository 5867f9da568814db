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
	"fmt"
	"log/slog"

	badgerstore "github.com/AleutianAI/soapgen/services/generator/storage/badger"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Open builds the store named by backend. An empty backend selects memory.
func Open(backend string, logger *slog.Logger) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewInMemoryStore(), nil
	case BackendBadger:
		cfg := badgerstore.DefaultConfig()
		cfg.Logger = logger
		return NewBadgerStore(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
