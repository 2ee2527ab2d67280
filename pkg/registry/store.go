package registry

import (
	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

// Store is the worker registry contract. The supervisor and every worker
// process share one store; in-memory implementations exist for tests only
// and are never authoritative across processes.
type Store interface {
	// Save upserts a descriptor.
	Save(d *types.WorkerDescriptor) error

	// Get returns the descriptor with the given id, or nil when absent.
	Get(id string) (*types.WorkerDescriptor, error)

	// Delete removes the descriptor and reports whether it existed.
	Delete(id string) (bool, error)

	// List returns every readable descriptor. Corrupt entries are skipped,
	// never surfaced to the caller.
	List() ([]*types.WorkerDescriptor, error)

	// FindByCorrelationKey returns the first descriptor whose correlation
	// key matches, or nil when none does.
	FindByCorrelationKey(key string) (*types.WorkerDescriptor, error)
}
