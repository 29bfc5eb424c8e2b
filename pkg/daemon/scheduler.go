package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	defaultLeadDuration = time.Minute // upcoming runs are announced this early
	preCheckMaxTimes    = 30
	preCheckInterval    = time.Second * 10
)

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs Task on a cron schedule. Before each run it announces the
// run through OnUpcoming, then calls PreCheck until it passes (or gives up
// and waits for the next run).
type Scheduler struct {
	OnUpcoming NotifyFunc // called leadDuration before a run
	OnError    NotifyFunc // called on precheck or task error
	Task       TaskFunc
	PreCheck   TaskFunc

	parser       cron.Parser
	leadDuration time.Duration

	mu       sync.Mutex
	schedule cron.Schedule
	expr     string
	nextRun  time.Time
	running  bool

	controlCh chan control
	stopCh    chan struct{}
}

type control int

const (
	ctrlRecalculate control = iota // schedule changed
	ctrlSkip                       // next run skipped
)

func NewScheduler(task, preCheck TaskFunc, onUpcoming, onError NotifyFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming:   onUpcoming,
		OnError:      onError,
		Task:         task,
		PreCheck:     preCheck,
		parser:       cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		leadDuration: defaultLeadDuration,
		controlCh:    make(chan control, 4),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the scheduling loop. It is a no-op if already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.loop()
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Schedule replaces the cron expression. An empty expression clears the
// schedule; the loop keeps running but never fires.
func (s *Scheduler) Schedule(cronExpr string) error {
	var sh cron.Schedule
	if cronExpr != "" {
		var err error
		sh, err = s.parser.Parse(cronExpr)
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}
	}

	s.mu.Lock()
	s.schedule = sh
	s.expr = cronExpr
	s.nextRun = time.Time{}
	if sh != nil {
		s.nextRun = sh.Next(time.Now())
	}
	s.mu.Unlock()

	s.trySendControl(ctrlRecalculate)
	return nil
}

// Skip moves the next run one schedule period forward.
func (s *Scheduler) Skip() (time.Time, error) {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return time.Time{}, fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	next := s.nextRun
	s.mu.Unlock()

	s.trySendControl(ctrlSkip)
	return next, nil
}

// Status returns the cron expression and the next run time. nextRun is zero
// when nothing is scheduled.
func (s *Scheduler) Status() (expr string, nextRun time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr, s.nextRun
}

func (s *Scheduler) loop() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()
	logrus.Debug("scheduler started")

	for {
		nextRun := s.snapshot()
		announced := false
		attempts := 0
		var lastPreCheckErr error

		timer := time.NewTimer(s.waitFor(nextRun, true))

	wait:
		for {
			select {
			case <-s.stopCh:
				timer.Stop()
				return
			case c := <-s.controlCh:
				logrus.WithField("kind", c).Debug("scheduler control")
				timer.Stop()
				break wait
			case <-timer.C:
				if nextRun.IsZero() {
					break wait
				}
				if !announced {
					announced = true
					logrus.Debugf("upcoming scheduled run at %s", nextRun.Format(time.DateTime))
					s.notify(s.OnUpcoming, nextRun)
					timer.Reset(s.waitFor(nextRun, false))
					continue
				}

				if s.PreCheck != nil {
					if err := s.PreCheck(); err != nil {
						if lastPreCheckErr == nil || err.Error() != lastPreCheckErr.Error() {
							lastPreCheckErr = err
							s.notify(s.OnError, fmt.Errorf("precheck failed: %w", err))
						}
						attempts++
						if attempts <= preCheckMaxTimes {
							logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, preCheckMaxTimes, err, preCheckInterval)
							timer.Reset(preCheckInterval)
							continue
						}
						s.advance(nextRun)
						break wait
					}
				}

				logrus.Debugf("running scheduled task at %s", nextRun.Format(time.DateTime))
				go func() {
					if err := s.Task(); err != nil {
						s.notify(s.OnError, fmt.Errorf("task failed: %w", err))
					}
				}()
				s.advance(nextRun)
				break wait
			}
		}
	}
}

// waitFor returns how long to sleep before the announcement (lead) or the
// run itself.
func (s *Scheduler) waitFor(nextRun time.Time, lead bool) time.Duration {
	if nextRun.IsZero() {
		return time.Hour * 10000
	}
	d := time.Until(nextRun)
	if lead {
		d -= s.leadDuration
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (s *Scheduler) snapshot() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// advance moves past ran unless a control message already changed nextRun.
func (s *Scheduler) advance(ran time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil || !s.nextRun.Equal(ran) {
		return
	}
	s.nextRun = s.schedule.Next(ran)
}

func (s *Scheduler) notify(fn NotifyFunc, data any) {
	if fn == nil {
		return
	}
	go fn(data)
}

func (s *Scheduler) trySendControl(c control) {
	select {
	case s.controlCh <- c:
	default:
	}
}
