package calibration

import (
	"fmt"
	"math"
)

// NoData is displayed in place of a value that cannot be computed yet.
const NoData = "--"

// AverageSensorTemp returns the arithmetic mean of the sensor samples of t.
// The second return value is false when there is no snapshot or the last
// interval carried no samples.
func AverageSensorTemp(t *Telemetry) (float64, bool) {
	if t == nil || len(t.SensorSamples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range t.SensorSamples {
		sum += s
	}
	return sum / float64(len(t.SensorSamples)), true
}

// GlobalProgressPercent returns the progress of the whole run:
//
//	round((current_step-1)/total_steps*100 + elapsed/total_dwell/total_steps*100)
//
// The result is deliberately not clamped to [0, 100]: the controller does not
// guarantee elapsed <= total_dwell. Halves round up. A step without dwell
// time contributes nothing for the dwell term. Values beyond the int32 range
// saturate at its bounds.
func GlobalProgressPercent(t *Telemetry) int {
	if t == nil || t.TotalSteps <= 0 {
		return 0
	}
	steps := float64(t.TotalSteps)
	p := float64(t.CurrentStep-1) / steps * 100
	if t.TotalDwellSeconds != 0 {
		p += t.ElapsedDwellSeconds / t.TotalDwellSeconds / steps * 100
	}
	p = math.Floor(p + 0.5)
	switch {
	case math.IsNaN(p):
		return 0
	case p >= math.MaxInt32:
		return math.MaxInt32
	case p <= math.MinInt32:
		return math.MinInt32
	}
	return int(p)
}

// Summary holds display-ready strings derived from one snapshot.
type Summary struct {
	ReferenceTemp      string `json:"referenceTemp"`
	StabilityLabel     string `json:"stabilityLabel"`
	AverageSensorTemp  string `json:"averageSensorTemp"`
	SamplesPerInterval int    `json:"samplesPerInterval"`
	StepLabel          string `json:"stepLabel"`
	PhaseLabel         string `json:"phaseLabel"`
	Dwell              string `json:"dwell"`
	ProgressPercent    int    `json:"progressPercent"`
}

// Summarize derives the operator view of t. A nil snapshot yields NoData
// placeholders everywhere.
func Summarize(t *Telemetry) Summary {
	s := Summary{
		ReferenceTemp:     NoData,
		StabilityLabel:    "RAMPING",
		AverageSensorTemp: NoData,
		StepLabel:         "Step 0 of 0",
		PhaseLabel:        "RAMP",
		Dwell:             NoData,
	}
	if t == nil {
		return s
	}

	s.ReferenceTemp = fmt.Sprintf("%.2f°C", t.ReferenceTemp)
	if t.IsStable {
		s.StabilityLabel = "STABLE"
	}
	if avg, ok := AverageSensorTemp(t); ok {
		s.AverageSensorTemp = fmt.Sprintf("%.2f°C", avg)
	}
	s.SamplesPerInterval = len(t.SensorSamples)
	s.StepLabel = fmt.Sprintf("Step %d of %d", t.CurrentStep, t.TotalSteps)
	if t.Phase == PhaseDwell {
		s.PhaseLabel = "DWELL TIME"
	}
	s.Dwell = fmt.Sprintf("%gs / %gs", t.ElapsedDwellSeconds, t.TotalDwellSeconds)
	s.ProgressPercent = GlobalProgressPercent(t)
	return s
}
