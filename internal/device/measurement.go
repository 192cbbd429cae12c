package device

// MeasurementState observes the out-of-scope command/control channel's
// measurement started/stopped lifecycle events and gates buffer clearing
// across every connected device, per spec.md 1 ("the command channel ...
// emits lifecycle events which the core observes only to gate buffer
// clearing"). It holds no transport of its own; the composition root
// calls Started/Stopped when it receives those events.
type MeasurementState struct {
	manager *Manager
}

// NewMeasurementState builds a MeasurementState bound to manager.
func NewMeasurementState(manager *Manager) *MeasurementState {
	return &MeasurementState{manager: manager}
}

// Stopped marks every currently connected device's PacketBuffer as
// measurement-stopped, dropping further bytes and clearing its rolling
// buffer until Started is called.
func (m *MeasurementState) Stopped() {
	for _, id := range m.manager.DeviceIDs() {
		if pb, ok := m.manager.Get(id); ok {
			pb.SetMeasurementStopped(true)
		}
	}
}

// Started resumes normal framing on every currently connected device.
func (m *MeasurementState) Started() {
	for _, id := range m.manager.DeviceIDs() {
		if pb, ok := m.manager.Get(id); ok {
			pb.SetMeasurementStopped(false)
		}
	}
}

// StoppedFor marks a single device's PacketBuffer as measurement-stopped.
func (m *MeasurementState) StoppedFor(deviceID uint32) {
	if pb, ok := m.manager.Get(deviceID); ok {
		pb.SetMeasurementStopped(true)
	}
}

// StartedFor resumes normal framing on a single device.
func (m *MeasurementState) StartedFor(deviceID uint32) {
	if pb, ok := m.manager.Get(deviceID); ok {
		pb.SetMeasurementStopped(false)
	}
}
