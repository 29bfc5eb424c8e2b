package monitor

import (
	"context"
	"io"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/client"
	"github.com/thermolab/thermocal/pkg/events"
)

// Controller is the boundary of the external calibration controller as seen
// by a Session.
type Controller interface {
	StartCalibration(ctx context.Context, steps []calibration.Step) (string, error)
	StopCalibration(ctx context.Context) (string, error)
	// Subscribe delivers telemetry and scheduled-run announcements
	// sequentially until the returned handle is closed. After Close returns,
	// neither callback is called again. onScheduled may be nil.
	Subscribe(ctx context.Context, onEvent func(calibration.Telemetry), onScheduled func(events.CalibrationScheduledEvent)) (io.Closer, error)
}

type clientController struct {
	c *client.Client
}

// FromClient adapts a controller client to the Controller interface.
func FromClient(c *client.Client) Controller {
	return &clientController{c: c}
}

func (cc *clientController) StartCalibration(ctx context.Context, steps []calibration.Step) (string, error) {
	return cc.c.StartCalibration(ctx, steps)
}

func (cc *clientController) StopCalibration(ctx context.Context) (string, error) {
	return cc.c.StopCalibration(ctx)
}

func (cc *clientController) Subscribe(ctx context.Context, onEvent func(calibration.Telemetry), onScheduled func(events.CalibrationScheduledEvent)) (io.Closer, error) {
	var opts []client.SubscribeOption
	if onScheduled != nil {
		opts = append(opts, client.WithScheduledHandler(onScheduled))
	}
	sub, err := cc.c.Subscribe(ctx, onEvent, opts...)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
