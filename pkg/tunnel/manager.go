package tunnel

import (
	"context"
	"fmt"
	"sync"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
)

// Manager is the in-process registry of active tunnels inside a worker.
// Connect/Disconnect on the same id are serialized; operations on
// different ids proceed concurrently.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex // serializes connect/disconnect per tunnel
	tunnel Tunnel
}

// NewManager creates an empty tunnel manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// Register adds a tunnel under the given id, replacing any previous one.
func (m *Manager) Register(id string, t Tunnel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &entry{tunnel: t}
}

// Get returns the tunnel registered under id, or nil.
func (m *Manager) Get(id string) Tunnel {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		return e.tunnel
	}
	return nil
}

// Connect connects the tunnel registered under id.
func (m *Manager) Connect(ctx context.Context, id string) error {
	e := m.entry(id)
	if e == nil {
		return fmt.Errorf("no tunnel registered for %s", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tunnel.Connect(ctx)
}

// Disconnect disconnects the tunnel registered under id and removes it.
func (m *Manager) Disconnect(id string) error {
	e := m.entry(id)
	if e == nil {
		return fmt.Errorf("no tunnel registered for %s", id)
	}
	e.mu.Lock()
	err := e.tunnel.Disconnect()
	e.mu.Unlock()

	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return err
}

// ActiveCount returns the number of registered tunnels currently connected.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.tunnel.IsConnected() {
			n++
		}
	}
	return n
}

// Len returns the number of registered tunnels, connected or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// DisconnectAll disconnects every registered tunnel and clears the map
// unconditionally. It returns one result per tunnel; failures are collected
// rather than aborting cleanup.
func (m *Manager) DisconnectAll() []error {
	m.mu.Lock()
	entries := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		entries[id] = e
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	logger := log.WithComponent("tunnel-manager")
	results := make([]error, 0, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		err := e.tunnel.Disconnect()
		e.mu.Unlock()
		if err != nil {
			logger.Warn().Err(err).Str("tunnel_id", id).Msg("tunnel disconnect failed during shutdown")
		}
		results = append(results, err)
	}
	return results
}

func (m *Manager) entry(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id]
}
