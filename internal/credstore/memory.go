package credstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/source"
)

// Memory keeps records in process memory. Nothing survives a restart.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Get(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, apperr.NotFound("credentials", id)
	}
	return Record{Credentials: maps.Clone(r.Credentials), Enabled: r.Enabled}, nil
}

func (m *Memory) Set(_ context.Context, id string, creds source.Credentials, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = Record{Credentials: maps.Clone(creds), Enabled: enabled}
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.records)), nil
}

func (m *Memory) Close() error { return nil }
