package worker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-platform/internal/rpc"
)

// MemoryResults keeps the last known result per job id for the lifetime of
// the worker process. Safe for concurrent use by simultaneous RPC calls.
type MemoryResults struct {
	mu      sync.RWMutex
	results map[uuid.UUID]rpc.ProcessResponse
}

// NewMemoryResults creates an empty result store.
func NewMemoryResults() *MemoryResults {
	return &MemoryResults{results: make(map[uuid.UUID]rpc.ProcessResponse)}
}

// Put records the result for a job id, replacing any previous entry.
func (m *MemoryResults) Put(res rpc.ProcessResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.JobID] = res
}

// Get returns the last recorded result for a job id.
func (m *MemoryResults) Get(id uuid.UUID) (rpc.ProcessResponse, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.results[id]
	return res, ok
}
