package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thermolab/thermocal/pkg/calibration"
)

func TestFileDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if f.TickInterval() != time.Second {
		t.Fatalf("expected 1s tick interval, got %s", f.TickInterval())
	}
	if f.SamplesPerTick() != 10 || f.SettleTicks() != 3 {
		t.Fatalf("unexpected defaults: samples=%d settle=%d", f.SamplesPerTick(), f.SettleTicks())
	}
	if f.Schedule() != "" || f.Plan() != nil || f.AllowNonRootAccess() {
		t.Fatalf("unexpected defaults for schedule/plan/access")
	}
}

func TestFileSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thermocal.json")
	f := NewFileFromConfig(nil, path)
	f.SetSchedule("@every 1h")
	f.SetPlan([]calibration.Step{{TargetValue: 30, DwellMinutes: 5}})
	f.SetAllowNonRootAccess(true)
	if err := f.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if loaded.Schedule() != "@every 1h" || !loaded.AllowNonRootAccess() {
		t.Fatalf("unexpected loaded config: %v", loaded.LogrusFields())
	}
	if plan := loaded.Plan(); len(plan) != 1 || plan[0].TargetValue != 30 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	// untouched fields keep their defaults
	if loaded.TickInterval() != time.Second {
		t.Fatalf("expected default tick interval, got %s", loaded.TickInterval())
	}
}

func TestFileLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad json", `{`},
		{"zero tick", `{"tickIntervalMillis": 0}`},
		{"zero settle", `{"settleTicks": 0}`},
		{"negative dwell in plan", `{"plan": [{"target_value": 20, "dwell_minutes": -1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "thermocal.json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewFile(path); err == nil {
				t.Fatalf("expected error loading %s", tt.content)
			}
		})
	}
}

func TestNewRawFileConfigFromConfig(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	raw, err := NewRawFileConfigFromConfig(f)
	if err != nil {
		t.Fatalf("NewRawFileConfigFromConfig failed: %v", err)
	}
	if *raw.TickIntervalMillis != 1000 || *raw.SamplesPerTick != 10 {
		t.Fatalf("unexpected raw config %+v", raw)
	}
	if _, err := NewRawFileConfigFromConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
