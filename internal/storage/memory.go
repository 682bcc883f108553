package storage

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	texts map[Key]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{texts: make(map[Key]string)}
}

// Write stores text under key.
func (m *Memory) Write(_ context.Context, key Key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[key] = text
	return nil
}

// Read returns the text stored under key.
func (m *Memory) Read(_ context.Context, key Key) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.texts[key]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

// List returns the stored section ids for one report, sorted.
func (m *Memory) List(_ context.Context, company, language string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for k := range m.texts {
		if k.Company == company && k.Language == language {
			ids = append(ids, k.SectionID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Len returns the number of stored texts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.texts)
}
