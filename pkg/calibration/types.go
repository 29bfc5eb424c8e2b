package calibration

import "time"

// Step is one stage of a calibration plan. Plans execute in slice order.
type Step struct {
	TargetValue  float64 `json:"target_value" yaml:"target_value"`
	DwellMinutes float64 `json:"dwell_minutes" yaml:"dwell_minutes"`
}

// DwellSeconds returns the configured dwell of the step in seconds.
func (s Step) DwellSeconds() float64 {
	return s.DwellMinutes * 60
}

// Phase defines the phases a single step goes through.
type Phase string

const (
	// PhaseRamp means the reference is moving toward the target and has not settled.
	PhaseRamp Phase = "RAMP"
	// PhaseDwell means the reference settled and data is being recorded.
	PhaseDwell Phase = "DWELL"
)

// Telemetry is one event of the controller's telemetry stream. Each event
// fully supersedes the previous one.
type Telemetry struct {
	TimestampMs         int64
	ReferenceTemp       float64
	SensorSamples       []float64
	IsStable            bool
	CurrentStep         int
	TotalSteps          int
	ElapsedDwellSeconds float64
	TotalDwellSeconds   float64
	Phase               Phase
}

// Clone returns a deep copy of t, so the sample slice is not shared.
func (t Telemetry) Clone() Telemetry {
	c := t
	if t.SensorSamples != nil {
		c.SensorSamples = append(make([]float64, 0, len(t.SensorSamples)), t.SensorSamples...)
	}
	return c
}

// RunStatus is the client-side view of whether a calibration run is active.
// It only changes as a result of start/stop commands, never from telemetry.
type RunStatus int

const (
	StatusIdle RunStatus = iota
	StatusPendingStart
	StatusRunning
	StatusPendingStop
)

func (s RunStatus) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusPendingStart:
		return "PENDING_START"
	case StatusRunning:
		return "RUNNING"
	case StatusPendingStop:
		return "PENDING_STOP"
	}
	return "UNKNOWN"
}

// Active reports whether the controller is believed to be executing a run.
func (s RunStatus) Active() bool {
	return s == StatusRunning || s == StatusPendingStop
}

// ControllerStatus is the controller's own account of its run, returned by
// the status endpoint. The client never derives RunStatus from it.
type ControllerStatus struct {
	Running     bool      `json:"running"`
	Plan        []Step    `json:"plan,omitempty"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CurrentStep int       `json:"currentStep,omitempty"`
	Phase       Phase     `json:"phase,omitempty"`
	// ScheduledAt is the next cron-triggered run, zero when none is scheduled.
	ScheduledAt time.Time `json:"scheduledAt,omitempty"`
}

// ScheduleStatus describes the cron-triggered runs of the controller.
type ScheduleStatus struct {
	// Expression is the cron expression, empty when disabled.
	Expression string    `json:"expression"`
	NextRun    time.Time `json:"nextRun"`
}
