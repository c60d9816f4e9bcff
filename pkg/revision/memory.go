package revision

import (
	"math"
	"sync"

	"github.com/cuemby/mcci/pkg/types"
)

// Memory is an Authority that keeps counters in memory only. Revisions restart
// from 1 with every process, so it suits tests and throwaway nodes.
type Memory struct {
	mu   sync.Mutex
	revs map[types.VariableID]types.Revision
}

// NewMemory returns an empty in-memory authority.
func NewMemory() *Memory {
	return &Memory{revs: make(map[types.VariableID]types.Revision)}
}

func (m *Memory) GetRevision(v types.VariableID) (types.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revs[v], nil
}

func (m *Memory) IncRevision(v types.VariableID) (types.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revs[v] == math.MaxUint32 {
		return 0, ErrExhausted
	}
	m.revs[v]++
	return m.revs[v], nil
}
