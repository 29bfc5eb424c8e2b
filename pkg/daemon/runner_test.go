package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/config"
	"github.com/thermolab/thermocal/pkg/utils/ptr"
)

type recorder struct {
	mu     sync.Mutex
	events []calibration.Telemetry
}

func (r *recorder) publish(t calibration.Telemetry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

func (r *recorder) all() []calibration.Telemetry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]calibration.Telemetry(nil), r.events...)
}

// newTestRunner returns a runner that ticks without sleeping.
func newTestRunner(raw *config.RawFileConfig) (*Runner, *recorder) {
	conf := testConfig(raw)
	rec := &recorder{}
	r := NewRunner(conf, NewPlant(conf, 1), rec.publish)
	r.wait = func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }
	return r, rec
}

func TestRunnerPlan(t *testing.T) {
	r, rec := newTestRunner(&config.RawFileConfig{
		AmbientTemp:       ptr.To(20.0),
		RampRatePerSecond: ptr.To(1.0),
		SettleTicks:       ptr.To(2),
		SamplesPerTick:    ptr.To(3),
	})

	// 2 ramp ticks to 22, 2 settle ticks, dwell of 3 s
	steps := []calibration.Step{{TargetValue: 22, DwellMinutes: 0.05}}
	r.runPlan(context.Background(), steps)

	got := rec.all()
	phases := make([]calibration.Phase, 0, len(got))
	var elapsed []float64
	for _, ev := range got {
		phases = append(phases, ev.Phase)
		elapsed = append(elapsed, ev.ElapsedDwellSeconds)
		if ev.CurrentStep != 1 || ev.TotalSteps != 1 || ev.TotalDwellSeconds != 3 {
			t.Fatalf("unexpected event %+v", ev)
		}
		if len(ev.SensorSamples) != 3 {
			t.Fatalf("expected 3 samples, got %d", len(ev.SensorSamples))
		}
	}

	wantPhases := []calibration.Phase{
		calibration.PhaseRamp,  // 21
		calibration.PhaseRamp,  // 22, stable 1
		calibration.PhaseDwell, // stable 2, dwell starts
		calibration.PhaseDwell, // 1 s
		calibration.PhaseDwell, // 2 s
	}
	if len(phases) != len(wantPhases) {
		t.Fatalf("expected %d events, got %d: %v", len(wantPhases), len(phases), phases)
	}
	for i := range wantPhases {
		if phases[i] != wantPhases[i] {
			t.Fatalf("event %d: phase %s, want %s", i, phases[i], wantPhases[i])
		}
	}
	wantElapsed := []float64{0, 0, 0, 1, 2}
	for i := range wantElapsed {
		if elapsed[i] != wantElapsed[i] {
			t.Fatalf("event %d: elapsed %v, want %v", i, elapsed[i], wantElapsed[i])
		}
	}
	if !got[1].IsStable || got[0].IsStable {
		t.Fatalf("unexpected stability flags %v %v", got[0].IsStable, got[1].IsStable)
	}
}

func TestRunnerPlanSteps(t *testing.T) {
	r, rec := newTestRunner(&config.RawFileConfig{
		AmbientTemp:       ptr.To(20.0),
		RampRatePerSecond: ptr.To(100.0),
		SettleTicks:       ptr.To(1),
	})
	r.runPlan(context.Background(), []calibration.Step{
		{TargetValue: 20, DwellMinutes: 0},
		{TargetValue: 30, DwellMinutes: 0},
	})

	var steps []int
	for _, ev := range rec.all() {
		if len(steps) == 0 || steps[len(steps)-1] != ev.CurrentStep {
			steps = append(steps, ev.CurrentStep)
		}
		if ev.TotalSteps != 2 {
			t.Fatalf("unexpected total steps %d", ev.TotalSteps)
		}
	}
	if len(steps) != 2 || steps[0] != 1 || steps[1] != 2 {
		t.Fatalf("steps must run in order, got %v", steps)
	}
}

func TestRunnerStartStop(t *testing.T) {
	r, rec := newTestRunner(nil)
	// pace the loop so Stop has something to stop
	r.wait = sleepContext

	raw := config.RawFileConfig{TickIntervalMillis: ptr.To(5)}
	r.conf = testConfig(&raw)

	if err := r.Start(nil); !errors.Is(err, calibration.ErrEmptyPlan) {
		t.Fatalf("expected ErrEmptyPlan, got %v", err)
	}
	if err := r.Start(calibration.DefaultPlan()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(calibration.DefaultPlan()); !errors.Is(err, ErrCalibrationInProgress) || err.Error() != "calibration already in progress" {
		t.Fatalf("expected ErrCalibrationInProgress, got %v", err)
	}
	st := r.Status()
	if !st.Running || len(st.Plan) != 2 || st.StartedAt.IsZero() {
		t.Fatalf("unexpected status %+v", st)
	}

	time.Sleep(30 * time.Millisecond)
	if !r.Stop() {
		t.Fatalf("expected Stop to report a running calibration")
	}
	if r.Status().Running {
		t.Fatalf("runner still running after Stop")
	}
	n := len(rec.all())
	if n == 0 {
		t.Fatalf("expected telemetry before Stop")
	}
	time.Sleep(20 * time.Millisecond)
	if len(rec.all()) != n {
		t.Fatalf("telemetry published after Stop")
	}
	if r.Stop() {
		t.Fatalf("second Stop must be a no-op")
	}
}

func TestRunnerCompletes(t *testing.T) {
	r, _ := newTestRunner(&config.RawFileConfig{
		RampRatePerSecond: ptr.To(1000.0),
		SettleTicks:       ptr.To(1),
	})
	if err := r.Start([]calibration.Step{{TargetValue: 30, DwellMinutes: 0}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Wait()
	if r.Status().Running {
		t.Fatalf("runner should be idle after the plan completes")
	}
	if err := r.startConfiguredPlan(); err == nil {
		t.Fatalf("expected error without a configured plan")
	}
}
