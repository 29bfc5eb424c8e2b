package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/thermolab/thermocal/pkg/calibration"
)

// StateModel holds the latest telemetry snapshot and the run status. The
// snapshot is replaced with a single pointer swap, so readers always see one
// complete event.
type StateModel struct {
	snapshot atomic.Pointer[calibration.Telemetry]

	mu     sync.RWMutex
	status calibration.RunStatus
}

// NewStateModel returns an idle model with no snapshot.
func NewStateModel() *StateModel {
	return &StateModel{status: calibration.StatusIdle}
}

// Update replaces the held snapshot with t. The sample slice is copied so
// the caller may reuse it.
func (m *StateModel) Update(t calibration.Telemetry) {
	c := t.Clone()
	m.snapshot.Store(&c)
}

// Snapshot returns a copy of the latest event and whether one was received.
func (m *StateModel) Snapshot() (calibration.Telemetry, bool) {
	p := m.snapshot.Load()
	if p == nil {
		return calibration.Telemetry{}, false
	}
	return p.Clone(), true
}

// Clear drops the snapshot.
func (m *StateModel) Clear() {
	m.snapshot.Store(nil)
}

func (m *StateModel) RunStatus() calibration.RunStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SetRunStatus records the outcome of a command. Telemetry never calls it.
func (m *StateModel) SetRunStatus(s calibration.RunStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// transition moves to next and returns the previous status.
func (m *StateModel) transition(next calibration.RunStatus) calibration.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.status
	m.status = next
	return prev
}
