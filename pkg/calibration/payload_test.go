package calibration

import (
	"encoding/json"
	"reflect"
	"testing"
)

const validPayload = `{
	"timestamp_ms": 1700000000123,
	"current_temp_fluke": 20.05,
	"current_temp_sensor": [20.1, 20.0],
	"is_stable": true,
	"current_step": 1,
	"total_steps": 2,
	"elapsed_time": 12,
	"total_time": 60,
	"status": "DWELL"
}`

func TestDecodeTelemetry(t *testing.T) {
	got, err := DecodeTelemetry([]byte(validPayload))
	if err != nil {
		t.Fatalf("DecodeTelemetry failed: %v", err)
	}
	want := Telemetry{
		TimestampMs:         1700000000123,
		ReferenceTemp:       20.05,
		SensorSamples:       []float64{20.1, 20.0},
		IsStable:            true,
		CurrentStep:         1,
		TotalSteps:          2,
		ElapsedDwellSeconds: 12,
		TotalDwellSeconds:   60,
		Phase:               PhaseDwell,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodeTelemetry() = %+v, want %+v", got, want)
	}
}

func TestDecodeTelemetryRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"null", `null`},
		{"empty", ``},
		{"not an object", `[1,2,3]`},
		{"unknown field", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":[],"is_stable":false,"current_step":1,"total_steps":1,"elapsed_time":0,"total_time":0,"status":"RAMPA","extra":1}`},
		{"missing status", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":[],"is_stable":false,"current_step":1,"total_steps":1,"elapsed_time":0,"total_time":0}`},
		{"null samples", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":null,"is_stable":false,"current_step":1,"total_steps":1,"elapsed_time":0,"total_time":0,"status":"RAMPA"}`},
		{"null sample element", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":[20,null],"is_stable":false,"current_step":1,"total_steps":1,"elapsed_time":0,"total_time":0,"status":"RAMPA"}`},
		{"unknown status tag", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":[],"is_stable":false,"current_step":1,"total_steps":1,"elapsed_time":0,"total_time":0,"status":"RAMP"}`},
		{"step out of range", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":[],"is_stable":false,"current_step":3,"total_steps":2,"elapsed_time":0,"total_time":0,"status":"RAMPA"}`},
		{"step zero", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":[],"is_stable":false,"current_step":0,"total_steps":2,"elapsed_time":0,"total_time":0,"status":"RAMPA"}`},
		{"no steps", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":[],"is_stable":false,"current_step":1,"total_steps":0,"elapsed_time":0,"total_time":0,"status":"RAMPA"}`},
		{"negative elapsed", `{"timestamp_ms":1,"current_temp_fluke":1,"current_temp_sensor":[],"is_stable":false,"current_step":1,"total_steps":1,"elapsed_time":-1,"total_time":0,"status":"DWELL"}`},
		{"wrong type", `{"timestamp_ms":"now","current_temp_fluke":1,"current_temp_sensor":[],"is_stable":false,"current_step":1,"total_steps":1,"elapsed_time":0,"total_time":0,"status":"RAMPA"}`},
		{"trailing data", validPayload + `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeTelemetry([]byte(tt.payload)); err == nil {
				t.Fatalf("expected payload to be rejected")
			}
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := Telemetry{
		TimestampMs:   42,
		ReferenceTemp: 30,
		CurrentStep:   1,
		TotalSteps:    1,
		Phase:         PhaseRamp,
	}
	b, err := json.Marshal(NewPayload(in))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	out, err := DecodeTelemetry(b)
	if err != nil {
		t.Fatalf("decode failed: %v (payload %s)", err, b)
	}
	if out.Phase != PhaseRamp || len(out.SensorSamples) != 0 || out.TimestampMs != 42 {
		t.Fatalf("unexpected telemetry %+v", out)
	}
}
