package monitor

import (
	"reflect"
	"sync"
	"testing"

	"github.com/thermolab/thermocal/pkg/calibration"
)

func TestStateModelLastWriteWins(t *testing.T) {
	m := NewStateModel()
	if _, ok := m.Snapshot(); ok {
		t.Fatalf("expected no snapshot initially")
	}

	events := []calibration.Telemetry{
		{TimestampMs: 1, ReferenceTemp: 20, SensorSamples: []float64{20, 21}, CurrentStep: 1, TotalSteps: 2, TotalDwellSeconds: 60, Phase: calibration.PhaseRamp},
		{TimestampMs: 2, ReferenceTemp: 21, IsStable: true, CurrentStep: 1, TotalSteps: 2, TotalDwellSeconds: 60, Phase: calibration.PhaseDwell},
		{TimestampMs: 3, ReferenceTemp: 30, SensorSamples: []float64{}, CurrentStep: 2, TotalSteps: 2, ElapsedDwellSeconds: 5, TotalDwellSeconds: 120, Phase: calibration.PhaseRamp},
	}
	for i, ev := range events {
		m.Update(ev)
		got, ok := m.Snapshot()
		if !ok {
			t.Fatalf("expected snapshot after event %d", i)
		}
		if !reflect.DeepEqual(got, ev) {
			t.Fatalf("after event %d: snapshot %+v, want %+v", i, got, ev)
		}
	}
}

func TestStateModelCopiesSamples(t *testing.T) {
	m := NewStateModel()
	samples := []float64{1, 2, 3}
	m.Update(calibration.Telemetry{SensorSamples: samples})
	samples[0] = 100

	got, _ := m.Snapshot()
	if got.SensorSamples[0] != 1 {
		t.Fatalf("snapshot shares the caller's slice")
	}
	got.SensorSamples[1] = 100
	again, _ := m.Snapshot()
	if again.SensorSamples[1] != 2 {
		t.Fatalf("snapshot readers share storage")
	}
}

func TestStateModelNoTornReads(t *testing.T) {
	m := NewStateModel()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			// every field carries the same value within one event
			m.Update(calibration.Telemetry{
				TimestampMs:   int64(i),
				ReferenceTemp: float64(i),
				CurrentStep:   i,
				TotalSteps:    i,
				SensorSamples: []float64{float64(i)},
			})
		}
	}()

	for n := 0; n < 10000; n++ {
		got, ok := m.Snapshot()
		if !ok {
			continue
		}
		v := got.TimestampMs
		if int64(got.ReferenceTemp) != v || int64(got.CurrentStep) != v || int64(got.TotalSteps) != v || int64(got.SensorSamples[0]) != v {
			close(stop)
			wg.Wait()
			t.Fatalf("observed a torn snapshot: %+v", got)
		}
	}
	close(stop)
	wg.Wait()
}

func TestStateModelRunStatus(t *testing.T) {
	m := NewStateModel()
	if m.RunStatus() != calibration.StatusIdle {
		t.Fatalf("expected IDLE, got %s", m.RunStatus())
	}
	if prev := m.transition(calibration.StatusPendingStart); prev != calibration.StatusIdle {
		t.Fatalf("expected previous IDLE, got %s", prev)
	}
	m.SetRunStatus(calibration.StatusRunning)
	// telemetry does not touch the status
	m.Update(calibration.Telemetry{Phase: calibration.PhaseDwell})
	if m.RunStatus() != calibration.StatusRunning {
		t.Fatalf("expected RUNNING, got %s", m.RunStatus())
	}
}
