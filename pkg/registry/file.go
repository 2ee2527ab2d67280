package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

// FileStore keeps one JSON file per descriptor under a dedicated directory.
// Writes go through a temp file and rename so a reader in another process
// never observes a half-written record.
type FileStore struct {
	dir string
}

// NewFileStore creates the registry directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create registry dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save upserts a descriptor.
func (s *FileStore) Save(d *types.WorkerDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor %s: %w", d.ID, err)
	}

	tmp := s.path(d.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write descriptor %s: %w", d.ID, err)
	}
	if err := os.Rename(tmp, s.path(d.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit descriptor %s: %w", d.ID, err)
	}
	return nil
}

// Get returns the descriptor with the given id, or nil when absent.
func (s *FileStore) Get(id string) (*types.WorkerDescriptor, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read descriptor %s: %w", id, err)
	}

	var d types.WorkerDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("descriptor %s is corrupt: %w", id, err)
	}
	return &d, nil
}

// Delete removes the descriptor and reports whether it existed.
func (s *FileStore) Delete(id string) (bool, error) {
	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete descriptor %s: %w", id, err)
	}
	return true, nil
}

// List returns every readable descriptor, skipping corrupt entries.
func (s *FileStore) List() ([]*types.WorkerDescriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan registry dir: %w", err)
	}

	logger := log.WithComponent("registry")
	var out []*types.WorkerDescriptor
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			logger.Debug().Err(err).Str("entry", name).Msg("skipping unreadable registry entry")
			continue
		}

		var d types.WorkerDescriptor
		if err := json.Unmarshal(data, &d); err != nil {
			logger.Debug().Err(err).Str("entry", name).Msg("skipping corrupt registry entry")
			continue
		}
		out = append(out, &d)
	}
	return out, nil
}

// FindByCorrelationKey returns the first descriptor matching key, or nil.
func (s *FileStore) FindByCorrelationKey(key string) (*types.WorkerDescriptor, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.CorrelationKey == key {
			return d, nil
		}
	}
	return nil, nil
}
