package calibration

import (
	"errors"
	"math"
	"os"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptyPlan is returned when a plan has no steps.
	ErrEmptyPlan = errors.New("calibration plan has no steps")
	// ErrInvalidStep is returned when a step carries an unusable value.
	ErrInvalidStep = errors.New("invalid calibration step")
)

// Plan is the on-disk form of a step sequence. Both YAML and JSON are
// accepted since JSON is a subset of YAML.
type Plan struct {
	Steps []Step `json:"steps" yaml:"steps"`
}

// DefaultPlan returns the stock two-step plan used when none is given.
func DefaultPlan() []Step {
	return []Step{
		{TargetValue: 20.0, DwellMinutes: 1},
		{TargetValue: 45.0, DwellMinutes: 2},
	}
}

// ValidateSteps checks a plan before it is sent to the controller.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return ErrEmptyPlan
	}
	for i, s := range steps {
		if math.IsNaN(s.TargetValue) || math.IsInf(s.TargetValue, 0) {
			return pkgerrors.Wrapf(ErrInvalidStep, "step %d: target value is not a finite number", i+1)
		}
		if math.IsNaN(s.DwellMinutes) || math.IsInf(s.DwellMinutes, 0) || s.DwellMinutes < 0 {
			return pkgerrors.Wrapf(ErrInvalidStep, "step %d: dwell must be a non-negative number of minutes, got %v", i+1, s.DwellMinutes)
		}
	}
	return nil
}

// ParsePlan decodes and validates a YAML or JSON plan document.
func ParsePlan(b []byte) ([]Step, error) {
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse calibration plan")
	}
	if err := ValidateSteps(p.Steps); err != nil {
		return nil, err
	}
	return p.Steps, nil
}

// LoadPlan reads a plan file from disk.
func LoadPlan(path string) ([]Step, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read plan file %s", path)
	}
	steps, err := ParsePlan(b)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "plan file %s", path)
	}
	return steps, nil
}
