package device

import (
	"sync"

	"github.com/kstaniek/go-ampio-server/internal/logging"
	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// Manager is the multi-device registry: discovery (out of scope) hands it
// a device id and a connection, and it creates/destroys that device's
// PacketBuffer in response. Supplements spec.md's single-device
// PacketBuffer design with the multi-digitizer lifecycle the original
// system supports (one PacketBuffer per connected device).
type Manager struct {
	mu       sync.RWMutex
	registry *packet.Registry
	buffers  map[uint32]*PacketBuffer
	wire     func(*PacketBuffer)
}

// NewManager builds a Manager. wire is invoked once per newly created
// PacketBuffer to register its parsers and pairs before first use - the
// composition root's hook for instantiating the per-device worker pools.
func NewManager(reg *packet.Registry, wire func(*PacketBuffer)) *Manager {
	return &Manager{
		registry: reg,
		buffers:  make(map[uint32]*PacketBuffer),
		wire:     wire,
	}
}

// Connect creates (or returns the existing) PacketBuffer for deviceID.
func (m *Manager) Connect(deviceID uint32) *PacketBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pb, ok := m.buffers[deviceID]; ok {
		return pb
	}
	pb := New(deviceID, m.registry)
	if m.wire != nil {
		m.wire(pb)
	}
	m.buffers[deviceID] = pb
	logging.L().Info("device_connected", "device_id", deviceID)
	return pb
}

// Disconnect destroys deviceID's PacketBuffer. Per spec.md 5, destruction
// of the worker pools/coordinators registered against it (drain vs.
// cancel-and-discard) is the composition root's call, not the Manager's;
// the caller is expected to have already closed them before Disconnect,
// or to close them using the PacketBuffer returned here.
func (m *Manager) Disconnect(deviceID uint32) (*PacketBuffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pb, ok := m.buffers[deviceID]
	if ok {
		delete(m.buffers, deviceID)
		logging.L().Info("device_disconnected", "device_id", deviceID)
	}
	return pb, ok
}

// Get returns the PacketBuffer for deviceID, if connected.
func (m *Manager) Get(deviceID uint32) (*PacketBuffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pb, ok := m.buffers[deviceID]
	return pb, ok
}

// DeviceIDs returns the currently connected device ids.
func (m *Manager) DeviceIDs() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint32, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of currently connected devices.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buffers)
}
