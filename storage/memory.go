package storage

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore is an in-process Store used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	value   []byte
	version int64
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{
		Value:   append([]byte(nil), rec.value...),
		Version: strconv.FormatInt(rec.version, 10),
	}, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte, expected string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	current := ""
	if ok {
		current = strconv.FormatInt(rec.version, 10)
	}
	if current != expected {
		return "", ErrVersionConflict
	}

	next := rec.version + 1
	m.records[key] = memoryRecord{value: append([]byte(nil), value...), version: next}
	return strconv.FormatInt(next, 10), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
