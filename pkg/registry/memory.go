package registry

import (
	"sync"

	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

// MemoryStore is an in-memory Store used by tests. It is process-local and
// therefore cannot be shared with real worker processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]types.WorkerDescriptor
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]types.WorkerDescriptor)}
}

func (s *MemoryStore) Save(d *types.WorkerDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[d.ID] = *d
	return nil
}

func (s *MemoryStore) Get(id string) (*types.WorkerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.entries[id]; ok {
		copy := d
		return &copy, nil
	}
	return nil, nil
}

func (s *MemoryStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	delete(s.entries, id)
	return true, nil
}

func (s *MemoryStore) List() ([]*types.WorkerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.WorkerDescriptor, 0, len(s.entries))
	for _, d := range s.entries {
		copy := d
		out = append(out, &copy)
	}
	return out, nil
}

func (s *MemoryStore) FindByCorrelationKey(key string) (*types.WorkerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.entries {
		if d.CorrelationKey == key {
			copy := d
			return &copy, nil
		}
	}
	return nil, nil
}
