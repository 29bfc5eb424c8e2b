package client

import (
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/pkg/errors"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/config"
)

// StartCalibration asks the controller to execute steps in order. The plan is
// validated before anything is sent; an invalid plan is rejected locally with
// ErrCommandRejected. The returned string is the controller's acknowledgement.
func (c *Client) StartCalibration(ctx context.Context, steps []calibration.Step) (string, error) {
	if err := calibration.ValidateSteps(steps); err != nil {
		return "", classify(err, "start calibration")
	}
	body, err := json.Marshal(steps)
	if err != nil {
		return "", newError(ErrUnknown, "", pkgerrors.Wrap(err, "failed to marshal calibration steps"))
	}
	ret, err := c.Post(ctx, "/calibration/start", body)
	if err != nil {
		return "", classify(err, "start calibration")
	}
	return responseMessage(ret), nil
}

// StopCalibration asks the controller to stop the active run. The controller
// acknowledges a stop while idle, so this is valid in any state.
func (c *Client) StopCalibration(ctx context.Context) (string, error) {
	ret, err := c.Post(ctx, "/calibration/stop", nil)
	if err != nil {
		return "", classify(err, "stop calibration")
	}
	return responseMessage(ret), nil
}

// GetCalibrationStatus returns the controller's own view of its run.
func (c *Client) GetCalibrationStatus(ctx context.Context) (*calibration.ControllerStatus, error) {
	ret, err := c.Get(ctx, "/calibration/status")
	if err != nil {
		return nil, classify(err, "get calibration status")
	}
	var st calibration.ControllerStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, newError(ErrUnknown, "", pkgerrors.Wrap(err, "failed to unmarshal calibration status"))
	}
	return &st, nil
}

// GetConfig returns the controller configuration.
func (c *Client) GetConfig(ctx context.Context) (*config.RawFileConfig, error) {
	ret, err := c.Get(ctx, "/config")
	if err != nil {
		return nil, classify(err, "get config")
	}
	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, newError(ErrUnknown, "", pkgerrors.Wrap(err, "failed to unmarshal config"))
	}
	return &conf, nil
}

// GetVersion returns the controller version string.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	ret, err := c.Get(ctx, "/version")
	if err != nil {
		return "", classify(err, "get version")
	}
	return responseMessage(ret), nil
}

// GetSchedule returns the cron schedule of configured-plan runs.
func (c *Client) GetSchedule(ctx context.Context) (*calibration.ScheduleStatus, error) {
	ret, err := c.Get(ctx, "/schedule")
	if err != nil {
		return nil, classify(err, "get schedule")
	}
	var st calibration.ScheduleStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, newError(ErrUnknown, "", pkgerrors.Wrap(err, "failed to unmarshal schedule"))
	}
	return &st, nil
}

// SetSchedule sets the cron expression for configured-plan runs. An empty
// expression disables them.
func (c *Client) SetSchedule(ctx context.Context, expr string) (string, error) {
	body, err := json.Marshal(expr)
	if err != nil {
		return "", newError(ErrUnknown, "", pkgerrors.Wrap(err, "failed to marshal schedule"))
	}
	ret, err := c.Send(ctx, http.MethodPut, "/schedule", body)
	if err != nil {
		return "", classify(err, "set schedule")
	}
	return responseMessage(ret), nil
}

// SkipSchedule skips the next scheduled run.
func (c *Client) SkipSchedule(ctx context.Context) (string, error) {
	ret, err := c.Post(ctx, "/schedule/skip", nil)
	if err != nil {
		return "", classify(err, "skip scheduled run")
	}
	return responseMessage(ret), nil
}
