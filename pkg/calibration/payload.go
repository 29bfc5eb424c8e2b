package calibration

import (
	"bytes"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
)

// Wire tags used by the controller for the step phase.
const (
	WireStatusRamp  = "RAMPA"
	WireStatusDwell = "DWELL"
)

// Payload is the JSON body of a "calibration-update" event as emitted by the
// controller. Field names are fixed by the controller contract.
type Payload struct {
	TimestampMs       int64     `json:"timestamp_ms"`
	CurrentTempFluke  float64   `json:"current_temp_fluke"`
	CurrentTempSensor []float64 `json:"current_temp_sensor"`
	IsStable          bool      `json:"is_stable"`
	CurrentStep       int       `json:"current_step"`
	TotalSteps        int       `json:"total_steps"`
	ElapsedTime       float64   `json:"elapsed_time"`
	TotalTime         float64   `json:"total_time"`
	Status            string    `json:"status"`
}

// strictPayload mirrors Payload with pointer fields so missing keys and
// explicit nulls can be told apart from zero values.
type strictPayload struct {
	TimestampMs       *int64      `json:"timestamp_ms"`
	CurrentTempFluke  *float64    `json:"current_temp_fluke"`
	CurrentTempSensor *[]*float64 `json:"current_temp_sensor"`
	IsStable          *bool       `json:"is_stable"`
	CurrentStep       *int        `json:"current_step"`
	TotalSteps        *int        `json:"total_steps"`
	ElapsedTime       *float64    `json:"elapsed_time"`
	TotalTime         *float64    `json:"total_time"`
	Status            *string     `json:"status"`
}

// ParseWireStatus maps a controller status tag to a Phase.
func ParseWireStatus(s string) (Phase, error) {
	switch s {
	case WireStatusRamp:
		return PhaseRamp, nil
	case WireStatusDwell:
		return PhaseDwell, nil
	}
	return "", pkgerrors.Errorf("unknown status tag %q", s)
}

// WireStatus returns the controller status tag for p.
func (p Phase) WireStatus() string {
	if p == PhaseDwell {
		return WireStatusDwell
	}
	return WireStatusRamp
}

// NewPayload converts t into its wire representation.
func NewPayload(t Telemetry) Payload {
	samples := t.SensorSamples
	if samples == nil {
		samples = []float64{}
	}
	return Payload{
		TimestampMs:       t.TimestampMs,
		CurrentTempFluke:  t.ReferenceTemp,
		CurrentTempSensor: samples,
		IsStable:          t.IsStable,
		CurrentStep:       t.CurrentStep,
		TotalSteps:        t.TotalSteps,
		ElapsedTime:       t.ElapsedDwellSeconds,
		TotalTime:         t.TotalDwellSeconds,
		Status:            t.Phase.WireStatus(),
	}
}

// DecodeTelemetry validates a raw "calibration-update" payload against the
// controller schema. Unknown fields, missing fields, nulls and out-of-range
// values are all rejected; nothing from an invalid payload is returned.
func DecodeTelemetry(data []byte) (Telemetry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Telemetry{}, pkgerrors.New("empty telemetry payload")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var p strictPayload
	if err := dec.Decode(&p); err != nil {
		return Telemetry{}, pkgerrors.Wrap(err, "failed to decode telemetry payload")
	}
	if dec.More() {
		return Telemetry{}, pkgerrors.New("trailing data after telemetry payload")
	}

	missing := func(name string) error {
		return pkgerrors.Errorf("telemetry payload is missing %s", name)
	}
	switch {
	case p.TimestampMs == nil:
		return Telemetry{}, missing("timestamp_ms")
	case p.CurrentTempFluke == nil:
		return Telemetry{}, missing("current_temp_fluke")
	case p.CurrentTempSensor == nil:
		return Telemetry{}, missing("current_temp_sensor")
	case p.IsStable == nil:
		return Telemetry{}, missing("is_stable")
	case p.CurrentStep == nil:
		return Telemetry{}, missing("current_step")
	case p.TotalSteps == nil:
		return Telemetry{}, missing("total_steps")
	case p.ElapsedTime == nil:
		return Telemetry{}, missing("elapsed_time")
	case p.TotalTime == nil:
		return Telemetry{}, missing("total_time")
	case p.Status == nil:
		return Telemetry{}, missing("status")
	}

	phase, err := ParseWireStatus(*p.Status)
	if err != nil {
		return Telemetry{}, err
	}
	if *p.TotalSteps < 1 {
		return Telemetry{}, pkgerrors.Errorf("total_steps must be at least 1, got %d", *p.TotalSteps)
	}
	if *p.CurrentStep < 1 || *p.CurrentStep > *p.TotalSteps {
		return Telemetry{}, pkgerrors.Errorf("current_step %d out of range [1, %d]", *p.CurrentStep, *p.TotalSteps)
	}
	if *p.ElapsedTime < 0 {
		return Telemetry{}, pkgerrors.Errorf("elapsed_time must not be negative, got %v", *p.ElapsedTime)
	}
	if *p.TotalTime < 0 {
		return Telemetry{}, pkgerrors.Errorf("total_time must not be negative, got %v", *p.TotalTime)
	}

	samples := make([]float64, 0, len(*p.CurrentTempSensor))
	for i, v := range *p.CurrentTempSensor {
		if v == nil {
			return Telemetry{}, pkgerrors.Errorf("current_temp_sensor[%d] is null", i)
		}
		samples = append(samples, *v)
	}

	return Telemetry{
		TimestampMs:         *p.TimestampMs,
		ReferenceTemp:       *p.CurrentTempFluke,
		SensorSamples:       samples,
		IsStable:            *p.IsStable,
		CurrentStep:         *p.CurrentStep,
		TotalSteps:          *p.TotalSteps,
		ElapsedDwellSeconds: *p.ElapsedTime,
		TotalDwellSeconds:   *p.TotalTime,
		Phase:               phase,
	}, nil
}
