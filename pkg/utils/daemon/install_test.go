package daemon

import (
	"os"
	"strings"
	"testing"
)

func TestRenderUnit(t *testing.T) {
	unit := renderUnit("/usr/local/bin/thermocal", "/etc/thermocal.json", "/run/thermocal.sock")
	want := "ExecStart=/usr/local/bin/thermocal daemon --config /etc/thermocal.json --daemon-socket /run/thermocal.sock\n"
	if !strings.Contains(unit, want) {
		t.Fatalf("unit does not contain %q:\n%s", want, unit)
	}
	if strings.Contains(unit, "{{") {
		t.Fatalf("unit has unreplaced placeholders:\n%s", unit)
	}
}

func TestInstallUninstall(t *testing.T) {
	origDir, origCtl := unitDir, systemctl
	defer func() { unitDir, systemctl = origDir, origCtl }()

	unitDir = t.TempDir()
	var calls []string
	systemctl = func(args ...string) error {
		calls = append(calls, strings.Join(args, " "))
		return nil
	}

	// Install chmods the test binary itself; skip when that is not allowed.
	exe, err := os.Executable()
	if err != nil {
		t.Skip(err)
	}
	if fi, err := os.Stat(exe); err != nil || fi.Mode().Perm()&0200 == 0 {
		t.Skip("test binary is not writable")
	}

	if err := Install("/etc/thermocal.json", "/run/thermocal.sock"); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if _, err := os.Stat(unitPath()); err != nil {
		t.Fatalf("unit not written: %v", err)
	}

	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	if _, err := os.Stat(unitPath()); !os.IsNotExist(err) {
		t.Fatalf("unit not removed: %v", err)
	}
	// a second uninstall finds no unit and still succeeds
	if err := Uninstall(); err != nil {
		t.Fatalf("second Uninstall failed: %v", err)
	}

	want := []string{
		"daemon-reload",
		"enable --now thermocal.service",
		"disable --now thermocal.service",
		"daemon-reload",
		"disable --now thermocal.service",
		"daemon-reload",
	}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected systemctl calls %q", calls)
	}
}
