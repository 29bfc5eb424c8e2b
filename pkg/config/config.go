package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermolab/thermocal/pkg/calibration"
)

// Config is the configuration of the controller daemon.
type Config interface {
	// TickInterval is the period between two telemetry events.
	TickInterval() time.Duration
	// SamplesPerTick is the number of sensor samples carried by each event.
	SamplesPerTick() int
	RampRatePerSecond() float64
	StabilityTolerance() float64
	// SettleTicks is how many consecutive in-tolerance ticks make the reference stable.
	SettleTicks() int
	AmbientTemp() float64
	SensorOffset() float64
	SensorNoise() float64
	// Schedule is a cron expression for unattended runs of Plan. Empty disables it.
	Schedule() string
	Plan() []calibration.Step
	AllowNonRootAccess() bool

	SetSchedule(string)
	SetPlan([]calibration.Step)
	SetAllowNonRootAccess(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
