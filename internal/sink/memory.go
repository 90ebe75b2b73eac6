package sink

import (
	"context"
	"sync"

	"pagewalker/pkg/types"
)

// Memory collects records in order. Useful for tests and for callers that
// want the result set in process.
type Memory struct {
	mu      sync.Mutex
	records []types.Record
}

// NewMemory creates an in-memory collector.
func NewMemory() *Memory {
	return &Memory{}
}

// Emit appends the record.
func (m *Memory) Emit(_ context.Context, _ string, rec types.Record) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of everything emitted so far.
func (m *Memory) Records() []types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Record, len(m.records))
	copy(out, m.records)
	return out
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
