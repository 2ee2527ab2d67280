package tunnel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

type mockTunnel struct {
	mu            sync.Mutex
	connected     bool
	disconnectErr error
	disconnects   int
}

func (m *mockTunnel) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *mockTunnel) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
	return m.disconnectErr
}

func (m *mockTunnel) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTunnel) Status() types.TunnelStatus {
	return types.TunnelStatus{Connected: m.IsConnected()}
}

func (m *mockTunnel) BytesSent() uint64     { return 0 }
func (m *mockTunnel) BytesReceived() uint64 { return 0 }

func TestManagerActiveCount(t *testing.T) {
	m := NewManager()
	m.Register("a", &mockTunnel{connected: true})
	m.Register("b", &mockTunnel{})

	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, 2, m.Len())
}

func TestManagerDisconnectAll(t *testing.T) {
	m := NewManager()
	m.Register("a", &mockTunnel{connected: true})
	m.Register("b", &mockTunnel{})

	results := m.DisconnectAll()
	require.Len(t, results, 2)
	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, 0, m.Len())
}

func TestManagerDisconnectAllCollectsFailures(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager()
	m.Register("a", &mockTunnel{connected: true, disconnectErr: boom})
	m.Register("b", &mockTunnel{connected: true})

	results := m.DisconnectAll()
	require.Len(t, results, 2)

	failures := 0
	for _, err := range results {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, boom)
		}
	}
	assert.Equal(t, 1, failures)

	// Cleanup proceeds regardless of failures.
	assert.Equal(t, 0, m.Len())
}

func TestManagerConnectDisconnect(t *testing.T) {
	m := NewManager()
	mt := &mockTunnel{}
	m.Register("a", mt)

	require.NoError(t, m.Connect(context.Background(), "a"))
	assert.True(t, mt.IsConnected())

	require.NoError(t, m.Disconnect("a"))
	assert.False(t, mt.IsConnected())
	assert.Nil(t, m.Get("a"))
}

func TestManagerUnknownID(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.Connect(context.Background(), "nope"))
	assert.Error(t, m.Disconnect("nope"))
}
