package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/thermolab/thermocal/pkg/calibration"
	"github.com/thermolab/thermocal/pkg/monitor"
)

const progressBarWidth = 30

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func statusText(s calibration.RunStatus) string {
	switch s {
	case calibration.StatusRunning:
		return color.New(color.Bold, color.FgGreen).Sprint(s)
	case calibration.StatusPendingStart, calibration.StatusPendingStop:
		return color.New(color.Bold, color.FgYellow).Sprint(s)
	}
	return bold("%s", s)
}

// progressBar draws p percent. Values outside 0..100 are drawn clamped but
// the number is printed as is.
func progressBar(p int) string {
	filled := min(max(p, 0), 100) * progressBarWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", progressBarWidth-filled) + fmt.Sprintf("] %d%%", p)
}

// renderView writes the status display of v, followed by at most logTail
// log entries (all of them when logTail <= 0).
func renderView(w io.Writer, v monitor.View, logTail int) {
	s := v.Summary

	fmt.Fprintf(w, "%s %s\n", bold("Session:"), statusText(v.Status))
	if v.Recording {
		fmt.Fprintf(w, "  %s\n", color.New(color.Bold, color.FgRed).Sprint("● RECORDING DATA"))
	}
	fmt.Fprintln(w)

	stability := color.YellowString(s.StabilityLabel)
	if s.StabilityLabel == "STABLE" {
		stability = color.GreenString(s.StabilityLabel)
	}
	fmt.Fprintln(w, bold("Reference:"))
	fmt.Fprintf(w, "  Temperature: %s (%s)\n", bold("%s", s.ReferenceTemp), stability)
	fmt.Fprintln(w, bold("Sensors:"))
	fmt.Fprintf(w, "  Average: %s\n", bold("%s", s.AverageSensorTemp))
	fmt.Fprintf(w, "  Samples per interval: %d\n", s.SamplesPerInterval)
	fmt.Fprintln(w, bold("Progress:"))
	fmt.Fprintf(w, "  %s, %s: %s\n", s.StepLabel, s.PhaseLabel, s.Dwell)
	fmt.Fprintf(w, "  %s\n", progressBar(s.ProgressPercent))
	if !v.ScheduledAt.IsZero() {
		fmt.Fprintf(w, "%s %s\n", bold("Next scheduled run:"), v.ScheduledAt.Format("2006-01-02 15:04:05"))
	}

	logs := v.Logs
	if logTail > 0 && len(logs) > logTail {
		logs = logs[len(logs)-logTail:]
	}
	if len(logs) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Log:"))
	for _, e := range logs {
		line := e.String()
		if e.Severity == monitor.SeverityError {
			line = color.RedString(line)
		}
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func renderControllerStatus(w io.Writer, st *calibration.ControllerStatus) {
	fmt.Fprintf(w, "%s %s\n", bold("Calibration running:"), bool2Text(st.Running))
	if st.Running {
		fmt.Fprintf(w, "  Started at: %s\n", st.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  Step: %s\n", bold("%d of %d", st.CurrentStep, len(st.Plan)))
		fmt.Fprintf(w, "  Phase: %s\n", bold("%s", st.Phase))
	}
	if len(st.Plan) > 0 {
		fmt.Fprintln(w, bold("Plan:"))
		for i, step := range st.Plan {
			marker := " "
			if st.Running && i+1 == st.CurrentStep {
				marker = ">"
			}
			fmt.Fprintf(w, " %s %d. %g°C for %g min\n", marker, i+1, step.TargetValue, step.DwellMinutes)
		}
	}
	if !st.ScheduledAt.IsZero() {
		fmt.Fprintf(w, "%s %s\n", bold("Next scheduled run:"), st.ScheduledAt.Format("2006-01-02 15:04:05"))
	}
}
