package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/config"
	"github.com/thermolab/thermocal/pkg/events"
)

var (
	conf      config.Config
	hub       *events.EventHub
	runner    *Runner
	scheduler *Scheduler
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.POST("/calibration/start", startCalibration)
	router.POST("/calibration/stop", stopCalibration)
	router.GET("/calibration/status", getCalibrationStatus)
	router.GET("/schedule", getSchedule)
	router.PUT("/schedule", setSchedule)
	router.POST("/schedule/skip", skipSchedule)
	router.GET("/events", streamEvents)
	router.GET("/version", getVersion)

	return router
}

// setup wires the package state around c.
func setup(c config.Config) {
	conf = c
	hub = events.NewEventHub()
	plant := NewPlant(c, time.Now().UnixNano())
	runner = NewRunner(c, plant, func(t calibration.Telemetry) {
		hub.Publish(events.CalibrationUpdate, calibration.NewPayload(t))
	})
	scheduler = NewScheduler(
		runner.startConfiguredPlan,
		func() error {
			if runner.Status().Running {
				return ErrCalibrationInProgress
			}
			return nil
		},
		func(data any) {
			runAt, _ := data.(time.Time)
			logrus.WithField("runAt", runAt).Info("scheduled calibration run upcoming")
			hub.Publish(events.CalibrationScheduled, events.CalibrationScheduledEvent{
				RunAt: runAt.Unix(),
				Steps: len(conf.Plan()),
			})
		},
		func(data any) {
			logrus.WithField("error", data).Warn("scheduled calibration run failed")
		},
	)
}

func applySchedule() {
	if err := scheduler.Schedule(conf.Schedule()); err != nil {
		logrus.WithError(err).Error("failed to apply calibration schedule")
		return
	}
	if expr, next := scheduler.Status(); expr != "" {
		logrus.WithFields(logrus.Fields{
			"schedule": expr,
			"nextRun":  next,
		}).Info("calibration schedule active")
	}
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	c, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(c.LogrusFields()).Infof("config loaded")

	setup(c)
	router := setupRoutes()
	scheduler.Start()
	applySchedule()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := conf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
			applySchedule()
		}
	}()

	if _, err := os.Stat(unixSocketPath); err == nil {
		logrus.Warnf("removing stale socket %s", unixSocketPath)
		if err := os.Remove(unixSocketPath); err != nil {
			return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
		}
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			return pkgerrors.Wrapf(err, "failed to chmod %s", unixSocketPath)
		}
	}

	srv := &http.Server{
		Handler: router,
	}
	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-serveErr:
		logrus.Errorf("http server failed: %v", err)
		err = fmt.Errorf("http server failed: %w", err)
		shutdown(srv)
		return err
	}

	shutdown(srv)
	logrus.Info("exiting")
	return nil
}

func shutdown(srv *http.Server) {
	logrus.Info("stopping scheduler")
	scheduler.Stop()

	if runner.Stop() {
		logrus.Info("stopped active calibration run")
	}

	// Closing the hub ends every event stream before the server shuts down.
	hub.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
}
