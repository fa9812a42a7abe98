//go:build darwin

package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

type darwinService struct {
	opts Options
}

// New creates a new platform-specific service manager
func New(opts Options) Service {
	return &darwinService{opts: opts}
}

func (s *darwinService) plistPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "LaunchAgents", launchAgentLabel+".plist")
}

func (s *darwinService) logPath() string {
	home, _ := os.UserHomeDir()
	logDir := filepath.Join(home, "Library", "Logs", "NFC-Reader")
	os.MkdirAll(logDir, 0755)
	return logDir
}

func (s *darwinService) Install() error {
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

	plist, err := render("plist", plistTemplate, unitData{
		Label:          launchAgentLabel,
		ExecutablePath: execPath,
		LogPath:        s.logPath(),
		WorkingDir:     filepath.Dir(execPath),
		ArgList:        args,
	})
	if err != nil {
		return err
	}
	if err := writeUnit(s.plistPath(), plist); err != nil {
		return err
	}

	cmd := exec.Command("launchctl", "load", "-w", s.plistPath())
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to load launch agent: %s: %w", string(output), err)
	}
	return nil
}

func (s *darwinService) Uninstall() error {
	if !s.IsInstalled() {
		return ErrNotInstalled
	}

	cmd := exec.Command("launchctl", "unload", "-w", s.plistPath())
	cmd.CombinedOutput() // Ignore errors if not loaded

	if err := os.Remove(s.plistPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove plist file: %w", err)
	}
	return nil
}

func (s *darwinService) IsInstalled() bool {
	return fileExists(s.plistPath())
}

func (s *darwinService) Status() (string, error) {
	if !s.IsInstalled() {
		return "not installed", nil
	}

	output, err := exec.Command("launchctl", "list", launchAgentLabel).CombinedOutput()
	if err != nil {
		return "installed but not running", nil
	}
	if len(output) > 0 {
		return "running", nil
	}
	return "installed", nil
}
