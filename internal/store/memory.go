// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sync"
)

type memoryDocs struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory returns a process-local Store.
func NewMemory() Store {
	return typed{docs: &memoryDocs{docs: make(map[string][]byte)}}
}

func (m *memoryDocs) get(_ context.Context, kind, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[kind+":"+id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (m *memoryDocs) put(_ context.Context, kind, id string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[kind+":"+id] = append([]byte(nil), doc...)
	return nil
}

func (m *memoryDocs) Close() error { return nil }
