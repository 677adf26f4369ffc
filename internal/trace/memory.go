package trace

import (
	"context"
	"sync"

	"github.com/dvloznov/finance-assistant/internal/identity"
)

// DefaultMemoryCapacity bounds the in-memory log.
const DefaultMemoryCapacity = 1000

// Memory keeps the most recent records in process.
type Memory struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
}

var _ Recorder = (*Memory)(nil)

// NewMemory creates a log holding at most capacity records.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Record(_ context.Context, records ...Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, records...)
	if over := len(m.records) - m.capacity; over > 0 {
		m.records = append(m.records[:0:0], m.records[over:]...)
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, tenant identity.TenantID, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Record{}
	for i := len(m.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if m.records[i].Tenant == tenant {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}
