package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/config"
	"github.com/thermolab/thermocal/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func startCalibration(c *gin.Context) {
	var steps []calibration.Step
	if err := c.ShouldBindJSON(&steps); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("invalid calibration plan: %w", err))
		return
	}

	if err := runner.Start(steps); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, ErrCalibrationInProgress) {
			code = http.StatusConflict
		}
		abortWithError(c, code, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("calibration started with %d steps", len(steps)))
}

func stopCalibration(c *gin.Context) {
	if !runner.Stop() {
		c.IndentedJSON(http.StatusCreated, "no calibration running")
		return
	}
	c.IndentedJSON(http.StatusCreated, "calibration stopped")
}

func getCalibrationStatus(c *gin.Context) {
	st := runner.Status()
	if scheduler != nil {
		_, st.ScheduledAt = scheduler.Status()
	}
	c.IndentedJSON(http.StatusOK, st)
}

func getSchedule(c *gin.Context) {
	expr, next := scheduler.Status()
	c.IndentedJSON(http.StatusOK, calibration.ScheduleStatus{Expression: expr, NextRun: next})
}

func setSchedule(c *gin.Context) {
	var expr string
	if err := c.ShouldBindJSON(&expr); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if expr != "" && len(conf.Plan()) == 0 {
		abortWithError(c, http.StatusBadRequest, errors.New("no plan configured: add a plan to the config file before scheduling runs"))
		return
	}

	if err := scheduler.Schedule(expr); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	conf.SetSchedule(expr)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	if expr == "" {
		logrus.Info("calibration schedule disabled")
		c.IndentedJSON(http.StatusCreated, "calibration schedule disabled")
		return
	}

	_, next := scheduler.Status()
	logrus.WithFields(logrus.Fields{
		"schedule": expr,
		"nextRun":  next,
	}).Info("calibration schedule set")
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("next calibration run at %s", next.Format(time.DateTime)))
}

func skipSchedule(c *gin.Context) {
	next, err := scheduler.Skip()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	logrus.WithField("nextRun", next).Info("skipped next scheduled run")
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("next calibration run at %s", next.Format(time.DateTime)))
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
