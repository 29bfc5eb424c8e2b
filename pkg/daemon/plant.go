package daemon

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/thermolab/thermocal/pkg/config"
)

// Plant simulates a dry-block calibrator with a reference thermometer and a
// set of sensors under test. The reference moves toward the setpoint at a
// bounded rate; every sensor reads the reference plus a fixed offset and
// some uniform noise.
type Plant struct {
	mu sync.Mutex

	reference float64
	setpoint  float64

	rampRate  float64 // degrees per second
	tolerance float64
	offset    float64
	noise     float64
	samples   int

	rng *rand.Rand
}

// NewPlant returns a plant resting at the configured ambient temperature.
func NewPlant(conf config.Config, seed int64) *Plant {
	ambient := conf.AmbientTemp()
	return &Plant{
		reference: ambient,
		setpoint:  ambient,
		rampRate:  conf.RampRatePerSecond(),
		tolerance: conf.StabilityTolerance(),
		offset:    conf.SensorOffset(),
		noise:     conf.SensorNoise(),
		samples:   conf.SamplesPerTick(),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// SetSetpoint changes the temperature the plant heads toward.
func (p *Plant) SetSetpoint(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setpoint = v
}

// Advance moves the reference toward the setpoint for dt.
func (p *Plant) Advance(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	maxStep := p.rampRate * dt.Seconds()
	diff := p.setpoint - p.reference
	if math.Abs(diff) <= maxStep {
		p.reference = p.setpoint
		return
	}
	p.reference += math.Copysign(maxStep, diff)
}

// Reference returns the reference thermometer reading.
func (p *Plant) Reference() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reference
}

// Stable reports whether the reference is within tolerance of the setpoint.
func (p *Plant) Stable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return math.Abs(p.setpoint-p.reference) <= p.tolerance
}

// Samples reads every sensor once. With no sensors attached the result is
// empty, never nil.
func (p *Plant) Samples() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]float64, p.samples)
	for i := range out {
		out[i] = p.reference + p.offset + (p.rng.Float64()*2-1)*p.noise
	}
	return out
}
