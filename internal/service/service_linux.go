//go:build linux

package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type linuxService struct {
	opts Options
}

// New creates a new platform-specific service manager
func New(opts Options) Service {
	return &linuxService{opts: opts}
}

func (s *linuxService) unitName() string {
	return appName + ".service"
}

func (s *linuxService) unitPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "systemd", "user", s.unitName())
}

func (s *linuxService) Install() error {
	if s.IsInstalled() {
		return ErrAlreadyInstalled
	}

	execPath, err := executablePath()
	if err != nil {
		return err
	}
	args, err := serviceArgs(s.opts)
	if err != nil {
		return err
	}

	unit, err := render("systemd", systemdTemplate, unitData{
		ExecutablePath: execPath,
		ArgList:        args,
	})
	if err != nil {
		return err
	}
	if err := writeUnit(s.unitPath(), unit); err != nil {
		return err
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", s.unitName())
}

func (s *linuxService) Uninstall() error {
	if !s.IsInstalled() {
		return ErrNotInstalled
	}

	// Ignore errors if the unit is not loaded
	_ = systemctl("disable", "--now", s.unitName())

	if err := os.Remove(s.unitPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	return systemctl("daemon-reload")
}

func (s *linuxService) IsInstalled() bool {
	return fileExists(s.unitPath())
}

func (s *linuxService) Status() (string, error) {
	if !s.IsInstalled() {
		return "not installed", nil
	}

	out, _ := exec.Command("systemctl", "--user", "is-active", s.unitName()).Output()
	state := strings.TrimSpace(string(out))
	if state == "active" {
		return "running", nil
	}
	if state == "" {
		state = "unknown"
	}
	return fmt.Sprintf("installed but not running (%s)", state), nil
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return nil
}
