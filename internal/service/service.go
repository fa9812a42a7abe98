// Package service installs nfc-reader as a per-user auto-start service.
package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const (
	appName          = "nfc-reader"
	launchAgentLabel = "com.simplyprint.nfc-reader"

	// systemd user unit, started with the user session
	systemdTemplate = `[Unit]
Description=NFC Reader - contactless card ID service
After=pcscd.socket

[Service]
Type=simple
ExecStart={{.ExecutablePath}} {{.Args}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

	plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
{{- range .ArgList}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>{{.LogPath}}/nfc-reader.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogPath}}/nfc-reader.err</string>
    <key>WorkingDirectory</key>
    <string>{{.WorkingDir}}</string>
</dict>
</plist>
`
)

var (
	// ErrAlreadyInstalled is returned by Install when the service exists.
	ErrAlreadyInstalled = errors.New("service already installed")
	// ErrNotInstalled is returned by Uninstall when there is nothing to remove.
	ErrNotInstalled = errors.New("service not installed")
	// ErrUnsupported is returned on platforms without an auto-start mechanism.
	ErrUnsupported = errors.New("auto-start service not supported on this platform")
)

// Service manages the auto-start entry for the current user.
type Service interface {
	Install() error
	Uninstall() error
	IsInstalled() bool
	Status() (string, error)
}

// Options configures the installed service.
type Options struct {
	// ConfigPath is passed to the service as --config when set.
	ConfigPath string
}

type unitData struct {
	Label          string
	ExecutablePath string
	LogPath        string
	WorkingDir     string
	ArgList        []string
}

// Args returns the argument list joined for a systemd ExecStart line.
func (d unitData) Args() string {
	quoted := make([]string, len(d.ArgList))
	for i, a := range d.ArgList {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

// serviceArgs returns the arguments the service is started with. The config
// path is made absolute since the service runs from another directory.
func serviceArgs(opts Options) ([]string, error) {
	args := []string{"serve"}
	if opts.ConfigPath != "" {
		path, err := filepath.Abs(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		args = append(args, "--config", path)
	}
	return args, nil
}

// executablePath returns the running binary with symlinks resolved.
func executablePath() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable path: %w", err)
	}
	return execPath, nil
}

func render(name, text string, data unitData) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return b.String(), nil
}

func writeUnit(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
