package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		TickIntervalMillis: ptr.To(1000),
		SamplesPerTick:     ptr.To(10),
		RampRatePerSecond:  ptr.To(0.5),
		StabilityTolerance: ptr.To(0.1),
		SettleTicks:        ptr.To(3),
		AmbientTemp:        ptr.To(25.0),
		SensorOffset:       ptr.To(0.0),
		SensorNoise:        ptr.To(0.05),
		Schedule:           ptr.To(""),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	TickIntervalMillis *int               `json:"tickIntervalMillis,omitempty"`
	SamplesPerTick     *int               `json:"samplesPerTick,omitempty"`
	RampRatePerSecond  *float64           `json:"rampRatePerSecond,omitempty"`
	StabilityTolerance *float64           `json:"stabilityTolerance,omitempty"`
	SettleTicks        *int               `json:"settleTicks,omitempty"`
	AmbientTemp        *float64           `json:"ambientTemp,omitempty"`
	SensorOffset       *float64           `json:"sensorOffset,omitempty"`
	SensorNoise        *float64           `json:"sensorNoise,omitempty"`
	Schedule           *string            `json:"schedule,omitempty"`
	Plan               []calibration.Step `json:"plan,omitempty"`
	AllowNonRootAccess *bool              `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		TickIntervalMillis: ptr.To(int(c.TickInterval() / time.Millisecond)),
		SamplesPerTick:     ptr.To(c.SamplesPerTick()),
		RampRatePerSecond:  ptr.To(c.RampRatePerSecond()),
		StabilityTolerance: ptr.To(c.StabilityTolerance()),
		SettleTicks:        ptr.To(c.SettleTicks()),
		AmbientTemp:        ptr.To(c.AmbientTemp()),
		SensorOffset:       ptr.To(c.SensorOffset()),
		SensorNoise:        ptr.To(c.SensorNoise()),
		Schedule:           ptr.To(c.Schedule()),
		Plan:               c.Plan(),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// validate rejects values the controller cannot run with.
func (c *RawFileConfig) validate() error {
	if c.TickIntervalMillis != nil && *c.TickIntervalMillis <= 0 {
		return pkgerrors.Errorf("tickIntervalMillis must be positive, got %d", *c.TickIntervalMillis)
	}
	if c.SamplesPerTick != nil && *c.SamplesPerTick < 0 {
		return pkgerrors.Errorf("samplesPerTick must not be negative, got %d", *c.SamplesPerTick)
	}
	if c.RampRatePerSecond != nil && *c.RampRatePerSecond <= 0 {
		return pkgerrors.Errorf("rampRatePerSecond must be positive, got %v", *c.RampRatePerSecond)
	}
	if c.StabilityTolerance != nil && *c.StabilityTolerance < 0 {
		return pkgerrors.Errorf("stabilityTolerance must not be negative, got %v", *c.StabilityTolerance)
	}
	if c.SettleTicks != nil && *c.SettleTicks < 1 {
		return pkgerrors.Errorf("settleTicks must be at least 1, got %d", *c.SettleTicks)
	}
	if c.SensorNoise != nil && *c.SensorNoise < 0 {
		return pkgerrors.Errorf("sensorNoise must not be negative, got %v", *c.SensorNoise)
	}
	if len(c.Plan) > 0 {
		if err := calibration.ValidateSteps(c.Plan); err != nil {
			return pkgerrors.Wrap(err, "invalid plan")
		}
	}
	return nil
}

func (f *File) raw() *RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}
	return f.c
}

func (f *File) TickInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ms := ptr.Deref(f.raw().TickIntervalMillis, *defaultFileConfig.TickIntervalMillis)
	return time.Duration(ms) * time.Millisecond
}

func (f *File) SamplesPerTick() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().SamplesPerTick, *defaultFileConfig.SamplesPerTick)
}

func (f *File) RampRatePerSecond() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().RampRatePerSecond, *defaultFileConfig.RampRatePerSecond)
}

func (f *File) StabilityTolerance() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().StabilityTolerance, *defaultFileConfig.StabilityTolerance)
}

func (f *File) SettleTicks() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().SettleTicks, *defaultFileConfig.SettleTicks)
}

func (f *File) AmbientTemp() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().AmbientTemp, *defaultFileConfig.AmbientTemp)
}

func (f *File) SensorOffset() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().SensorOffset, *defaultFileConfig.SensorOffset)
}

func (f *File) SensorNoise() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().SensorNoise, *defaultFileConfig.SensorNoise)
}

func (f *File) Schedule() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().Schedule, *defaultFileConfig.Schedule)
}

// Plan returns a copy of the plan used for scheduled runs.
func (f *File) Plan() []calibration.Step {
	f.mu.RLock()
	defer f.mu.RUnlock()

	plan := f.raw().Plan
	if len(plan) == 0 {
		return nil
	}
	return append([]calibration.Step(nil), plan...)
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) SetSchedule(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw().Schedule = &s
}

func (f *File) SetPlan(steps []calibration.Step) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw().Plan = append([]calibration.Step(nil), steps...)
}

func (f *File) SetAllowNonRootAccess(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.raw().AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	b, err := json.MarshalIndent(f.c, "", "  ")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config for file %s", f.filepath)
	}
	if err := os.WriteFile(f.filepath, append(b, '\n'), 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"tickInterval":       f.TickInterval(),
		"samplesPerTick":     f.SamplesPerTick(),
		"rampRatePerSecond":  f.RampRatePerSecond(),
		"stabilityTolerance": f.StabilityTolerance(),
		"settleTicks":        f.SettleTicks(),
		"schedule":           f.Schedule(),
		"planSteps":          len(f.Plan()),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
