package daemon

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/config"
)

// ErrCalibrationInProgress is returned by Start while a run is active.
var ErrCalibrationInProgress = pkgerrors.New("calibration already in progress")

// Runner executes one calibration plan at a time against a Plant and
// publishes a telemetry event on every tick.
type Runner struct {
	conf    config.Config
	plant   *Plant
	publish func(calibration.Telemetry)

	// wait blocks for d or until ctx is done; false means stop.
	wait func(ctx context.Context, d time.Duration) bool
	now  func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status calibration.ControllerStatus
}

func NewRunner(conf config.Config, plant *Plant, publish func(calibration.Telemetry)) *Runner {
	return &Runner{
		conf:    conf,
		plant:   plant,
		publish: publish,
		wait:    sleepContext,
		now:     time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start launches steps in the background. It fails if the plan is invalid
// or a run is already active.
func (r *Runner) Start(steps []calibration.Step) error {
	if err := calibration.ValidateSteps(steps); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Running {
		return ErrCalibrationInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.status = calibration.ControllerStatus{
		Running:     true,
		Plan:        append([]calibration.Step(nil), steps...),
		StartedAt:   r.now(),
		CurrentStep: 1,
		Phase:       calibration.PhaseRamp,
	}

	logrus.WithField("steps", len(steps)).Info("calibration run started")
	go func() {
		defer close(done)
		r.runPlan(ctx, steps)
		cancel()
		r.finish()
	}()
	return nil
}

// Stop cancels the active run and waits for it to wind down. It returns
// false if nothing was running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	cancel, done, running := r.cancel, r.done, r.status.Running
	r.mu.Unlock()

	if !running || cancel == nil {
		return false
	}
	cancel()
	<-done
	logrus.Info("calibration run stopped")
	return true
}

// Wait blocks until the active run, if any, has ended.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status returns a copy of the run status.
func (r *Runner) Status() calibration.ControllerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status
	st.Plan = append([]calibration.Step(nil), r.status.Plan...)
	return st
}

func (r *Runner) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Running = false
	r.cancel = nil
}

func (r *Runner) setProgress(step int, phase calibration.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.CurrentStep = step
	r.status.Phase = phase
}

// runPlan walks the steps in order. A step ramps until the reference has
// been stable for SettleTicks consecutive ticks, then dwells for the step's
// dwell time. The tick on which the dwell completes is not published.
func (r *Runner) runPlan(ctx context.Context, steps []calibration.Step) {
	interval := r.conf.TickInterval()
	settleTicks := r.conf.SettleTicks()

	for i, step := range steps {
		r.plant.SetSetpoint(step.TargetValue)
		r.setProgress(i+1, calibration.PhaseRamp)

		log := logrus.WithFields(logrus.Fields{
			"step":   i + 1,
			"target": step.TargetValue,
		})
		log.Info("ramping")

		var (
			settled    int
			dwelling   bool
			dwellTicks int
			total      = step.DwellSeconds()
		)
		for {
			if ctx.Err() != nil {
				return
			}
			r.plant.Advance(interval)
			stable := r.plant.Stable()

			var elapsed float64
			if !dwelling {
				if stable {
					settled++
				} else {
					settled = 0
				}
				if settled >= settleTicks {
					dwelling = true
					r.setProgress(i+1, calibration.PhaseDwell)
					log.Info("reference stable, dwelling")
				}
			} else {
				dwellTicks++
				elapsed = float64(dwellTicks) * interval.Seconds()
				if elapsed >= total {
					log.Info("dwell complete")
					break
				}
			}

			phase := calibration.PhaseRamp
			if dwelling {
				phase = calibration.PhaseDwell
			}
			r.publish(calibration.Telemetry{
				TimestampMs:         r.now().UnixMilli(),
				ReferenceTemp:       r.plant.Reference(),
				SensorSamples:       r.plant.Samples(),
				IsStable:            stable,
				CurrentStep:         i + 1,
				TotalSteps:          len(steps),
				ElapsedDwellSeconds: elapsed,
				TotalDwellSeconds:   total,
				Phase:               phase,
			})

			if !r.wait(ctx, interval) {
				return
			}
		}
	}
	logrus.Info("calibration plan complete")
}

// startConfiguredPlan runs the plan stored in the config file.
func (r *Runner) startConfiguredPlan() error {
	plan := r.conf.Plan()
	if len(plan) == 0 {
		return pkgerrors.New("no plan configured")
	}
	return r.Start(plan)
}
