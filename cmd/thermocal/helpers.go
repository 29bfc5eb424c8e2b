package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/thermolab/thermocal/pkg/calibration"
)

// commandContext derives the context of one daemon request from parent,
// bounded by --timeout unless it is zero.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if commandTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, commandTimeout)
}

// parseStepArg parses "target:minutes", e.g. "45:2" or "-10.5:0.5".
func parseStepArg(s string) (calibration.Step, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return calibration.Step{}, fmt.Errorf("invalid step %q: want target:minutes", s)
	}

	target, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
	if err != nil {
		return calibration.Step{}, fmt.Errorf("invalid target in step %q: %v", s, err)
	}
	minutes, err := strconv.ParseFloat(strings.TrimSpace(s[i+1:]), 64)
	if err != nil {
		return calibration.Step{}, fmt.Errorf("invalid dwell minutes in step %q: %v", s, err)
	}

	return calibration.Step{TargetValue: target, DwellMinutes: minutes}, nil
}

// buildPlan picks the plan for start: a plan file wins over --step flags,
// and with neither the default two-step plan is used.
func buildPlan(planFile string, stepArgs []string) ([]calibration.Step, error) {
	if planFile != "" {
		if len(stepArgs) > 0 {
			return nil, fmt.Errorf("--file and --step cannot be used together")
		}
		return calibration.LoadPlan(planFile)
	}
	if len(stepArgs) == 0 {
		return calibration.DefaultPlan(), nil
	}

	steps := make([]calibration.Step, 0, len(stepArgs))
	for _, a := range stepArgs {
		st, err := parseStepArg(a)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}
