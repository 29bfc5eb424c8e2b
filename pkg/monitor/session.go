// Package monitor implements the client side of a calibration run: it sends
// start/stop commands to the controller, keeps the latest telemetry snapshot
// and the run status, and maintains the operator log of the current run.
package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/client"
	"github.com/thermolab/thermocal/pkg/events"
)

// Operator log messages.
const (
	msgInitializing = "Initializing instruments..."
	msgStarted      = "Calibration started successfully."
	msgStopped      = "Process stopped by the operator."
	msgErrorPrefix  = "ERROR: "
)

// ErrSessionClosed is returned by Open after Close.
var ErrSessionClosed = pkgerrors.New("monitoring session closed")

// Session is one monitoring session against a controller.
type Session struct {
	ctrl  Controller
	state *StateModel
	logs  *LogBuffer

	// cmdMu serializes start/stop commands. Telemetry delivery never takes it.
	cmdMu sync.Mutex

	subMu  sync.Mutex
	sub    io.Closer
	closed bool

	progressMu sync.Mutex
	lastStep   int
	lastPhase  calibration.Phase

	scheduleMu  sync.Mutex
	scheduledAt time.Time
}

type sessionOptions struct {
	now         func() time.Time
	logCapacity int
}

// Option configures a Session.
type Option func(*sessionOptions)

// WithClock sets the clock used to stamp log entries.
func WithClock(now func() time.Time) Option {
	return func(o *sessionOptions) { o.now = now }
}

// WithLogCapacity overrides DefaultLogCapacity.
func WithLogCapacity(n int) Option {
	return func(o *sessionOptions) { o.logCapacity = n }
}

func NewSession(ctrl Controller, opts ...Option) *Session {
	o := sessionOptions{now: time.Now, logCapacity: DefaultLogCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return &Session{
		ctrl:  ctrl,
		state: NewStateModel(),
		logs:  NewLogBuffer(o.logCapacity, o.now),
	}
}

// Run opens a session, calls fn with it and always closes it afterwards,
// whether fn returns, fails or panics.
func Run(ctx context.Context, ctrl Controller, fn func(context.Context, *Session) error, opts ...Option) (err error) {
	s := NewSession(ctrl, opts...)
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, s)
}

// Open subscribes to the telemetry stream. ctx bounds the lifetime of the
// subscription. Calling Open on an open session is a no-op.
func (s *Session) Open(ctx context.Context) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.sub != nil {
		return nil
	}
	sub, err := s.ctrl.Subscribe(ctx, s.onTelemetry, s.onScheduled)
	if err != nil {
		logrus.WithError(err).Error("failed to subscribe to calibration telemetry")
		return err
	}
	s.sub = sub
	logrus.Debug("monitoring session opened")
	return nil
}

// Close releases the subscription. It is safe to call more than once; only
// the first call releases anything. No telemetry reaches the session after
// Close returns.
func (s *Session) Close() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.sub == nil {
		return nil
	}
	err := s.sub.Close()
	s.sub = nil
	logrus.Debug("monitoring session closed")
	return err
}

// Done returns a channel closed when the underlying stream stops
// delivering, or nil if the subscription does not report that.
func (s *Session) Done() <-chan struct{} {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if d, ok := s.sub.(interface{ Done() <-chan struct{} }); ok {
		return d.Done()
	}
	return nil
}

// Start resets the operator log, drops the previous run's snapshot and asks
// the controller to run steps. The
// status is PENDING_START while the command is in flight, RUNNING once it is
// acknowledged, and falls back to its previous value on failure. A failure
// is also recorded in the log.
func (s *Session) Start(ctx context.Context, steps []calibration.Step) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.logs.Reset()
	s.state.Clear()
	s.resetProgress()
	s.logs.Append(msgInitializing, SeverityInfo)

	prev := s.state.transition(calibration.StatusPendingStart)
	ack, err := s.ctrl.StartCalibration(ctx, steps)
	if err != nil {
		s.state.SetRunStatus(prev)
		s.logs.Append(msgErrorPrefix+client.ErrorMessage(err), SeverityError)
		logrus.WithError(err).WithField("steps", len(steps)).Error("failed to start calibration")
		return err
	}

	s.state.SetRunStatus(calibration.StatusRunning)
	s.logs.Append(msgStarted, SeverityInfo)
	logrus.WithFields(logrus.Fields{
		"steps": len(steps),
		"ack":   ack,
	}).Info("calibration started")
	return nil
}

// Stop asks the controller to stop. It is forwarded even when idle; the
// controller acknowledges that as a no-op and the status stays IDLE.
func (s *Session) Stop(ctx context.Context) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	prev := s.state.RunStatus()
	if prev.Active() {
		s.state.SetRunStatus(calibration.StatusPendingStop)
	}
	ack, err := s.ctrl.StopCalibration(ctx)
	if err != nil {
		s.state.SetRunStatus(prev)
		s.logs.Append(msgErrorPrefix+client.ErrorMessage(err), SeverityError)
		logrus.WithError(err).Error("failed to stop calibration")
		return err
	}

	s.state.SetRunStatus(calibration.StatusIdle)
	s.logs.Append(msgStopped, SeverityInfo)
	logrus.WithField("ack", ack).Info("calibration stopped")
	return nil
}

func (s *Session) onTelemetry(t calibration.Telemetry) {
	s.state.Update(t)

	s.progressMu.Lock()
	changed := t.CurrentStep != s.lastStep || t.Phase != s.lastPhase
	s.lastStep, s.lastPhase = t.CurrentStep, t.Phase
	s.progressMu.Unlock()

	if changed {
		s.logs.Append(fmt.Sprintf("Step %d: %s phase started", t.CurrentStep, t.Phase), SeverityInfo)
	}
}

// onScheduled records an upcoming cron-triggered run announced by the
// controller.
func (s *Session) onScheduled(ev events.CalibrationScheduledEvent) {
	runAt := time.Unix(ev.RunAt, 0)

	s.scheduleMu.Lock()
	s.scheduledAt = runAt
	s.scheduleMu.Unlock()

	s.logs.Append(fmt.Sprintf("Scheduled run of %d steps at %s", ev.Steps, runAt.Format(TimeOfDayFormat)), SeverityInfo)
	logrus.WithFields(logrus.Fields{
		"runAt": runAt,
		"steps": ev.Steps,
	}).Info("scheduled calibration run upcoming")
}

// ScheduledAt returns the start of the last announced scheduled run, or the
// zero time if none was announced.
func (s *Session) ScheduledAt() time.Time {
	s.scheduleMu.Lock()
	defer s.scheduleMu.Unlock()
	return s.scheduledAt
}

func (s *Session) resetProgress() {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	s.lastStep, s.lastPhase = 0, ""
}

// RunStatus returns the current run status.
func (s *Session) RunStatus() calibration.RunStatus {
	return s.state.RunStatus()
}

// Snapshot returns the latest telemetry event, if any.
func (s *Session) Snapshot() (calibration.Telemetry, bool) {
	return s.state.Snapshot()
}

// Logs returns the operator log of the current run, oldest first.
func (s *Session) Logs() []LogEntry {
	return s.logs.Entries()
}

// View is everything the status display needs, read at one point in time.
type View struct {
	Status   calibration.RunStatus
	Snapshot *calibration.Telemetry
	Summary  calibration.Summary
	// Recording is true while the controller dwells and records data.
	Recording bool
	// ScheduledAt is the last announced scheduled run, zero if none.
	ScheduledAt time.Time
	Logs        []LogEntry
}

// View returns the current presentation state.
func (s *Session) View() View {
	v := View{
		Status:      s.state.RunStatus(),
		ScheduledAt: s.ScheduledAt(),
		Logs:        s.logs.Entries(),
	}
	if t, ok := s.state.Snapshot(); ok {
		v.Snapshot = &t
		v.Recording = t.Phase == calibration.PhaseDwell
	}
	v.Summary = calibration.Summarize(v.Snapshot)
	return v
}
