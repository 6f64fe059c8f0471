package statuslog

import (
	"context"
	"sync"
)

// Memory is an in-process status log. It backs tests and serves as the
// local buffer for task copies that cross a process boundary and replay
// their records afterwards.
type Memory struct {
	mu   sync.RWMutex
	recs []Record
}

// NewMemory creates an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *Memory) Latest(ctx context.Context, taskName string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.recs) - 1; i >= 0; i-- {
		if m.recs[i].TaskName == taskName {
			rec := m.recs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *Memory) All(ctx context.Context, taskName string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.recs {
		if rec.TaskName == taskName {
			out = append(out, rec)
		}
	}
	return out, nil
}
