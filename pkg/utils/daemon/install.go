package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitDir  = "/etc/systemd/system"
	unitName = "thermocal.service"
	// systemctl is swapped out in tests.
	systemctl = func(args ...string) error {
		return exec.Command("systemctl", args...).Run()
	}
)

const unitTemplate = `[Unit]
Description=thermocal calibration controller
After=network.target

[Service]
Type=simple
ExecStart=/path/to/thermocal daemon --config {{config}} --daemon-socket {{socket}}
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure

[Install]
WantedBy=multi-user.target
`

// renderUnit fills the unit template for the given binary and paths.
func renderUnit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/thermocal", exePath,
		"{{config}}", configPath,
		"{{socket}}", socketPath,
	).Replace(unitTemplate)
}

func unitPath() string {
	return filepath.Join(unitDir, unitName)
}

// Install writes a systemd unit running the current executable as the
// controller daemon, then enables and starts it.
func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	if err := os.Chmod(exePath, 0755); err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}
	logrus.Infof("current executable path: %s", exePath)

	if err := os.MkdirAll(unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}

	p := unitPath()
	if _, err := os.Stat(p); err == nil {
		logrus.Warnf("%s already exists, overwriting", p)
	}

	logrus.Infof("writing systemd unit to %s", p)
	if err := os.WriteFile(p, []byte(renderUnit(exePath, configPath, socketPath)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}

	if err := systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	logrus.Infof("starting thermocal")
	if err := systemctl("enable", "--now", unitName); err != nil {
		return fmt.Errorf("failed to enable %s: %w", unitName, err)
	}

	return nil
}

// Uninstall stops the daemon and removes its unit. A missing unit is not an
// error.
func Uninstall() error {
	logrus.Infof("stopping thermocal")
	if err := systemctl("disable", "--now", unitName); err != nil {
		return fmt.Errorf("failed to disable %s: %w. Are you root?", unitName, err)
	}

	p := unitPath()
	logrus.Infof("removing %s", p)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", p, err)
	}

	return systemctl("daemon-reload")
}
