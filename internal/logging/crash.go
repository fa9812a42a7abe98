package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"
)

const (
	// MaxCrashLogs is the number of crash files kept on disk.
	MaxCrashLogs = 20
	// CrashLogMaxAge is how long a crash file is kept.
	CrashLogMaxAge = 30 * 24 * time.Hour

	crashFilePrefix = "crash_"
	crashFileSuffix = ".log"
	crashTimeLayout = "2006-01-02_15-04-05.000"
)

var crashLogDirOverride string

// SetCrashLogDir overrides the platform crash log directory. An empty dir
// restores the default.
func SetCrashLogDir(dir string) {
	crashLogDirOverride = dir
}

// CrashLogDir returns the per-user crash log directory.
func CrashLogDir() string {
	if crashLogDirOverride != "" {
		return crashLogDirOverride
	}

	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "NFC-Reader")
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "NFC-Reader", "logs")
		}
		return filepath.Join(home, "NFC-Reader", "logs")
	default:
		if state := os.Getenv("XDG_STATE_HOME"); state != "" {
			return filepath.Join(state, "nfc-reader")
		}
		return filepath.Join(home, ".local", "share", "nfc-reader", "logs")
	}
}

// CrashLogInfo describes a crash file.
type CrashLogInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

func isCrashLogName(name string) bool {
	return strings.HasPrefix(name, crashFilePrefix) && strings.HasSuffix(name, crashFileSuffix)
}

// WriteCrashLog writes a crash report and returns its path. where names the
// goroutine or request that panicked, e.g. "HTTP GET /nfc-card-id".
func WriteCrashLog(where string, panicValue any, stack []byte) (string, error) {
	dir := CrashLogDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create crash log directory: %w", err)
	}

	now := time.Now()
	path := filepath.Join(dir, crashFilePrefix+now.Format(crashTimeLayout)+crashFileSuffix)

	var b strings.Builder
	b.WriteString("NFC Reader Crash Report\n")
	b.WriteString("=======================\n")
	fmt.Fprintf(&b, "Time: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "Context: %s\n", where)
	fmt.Fprintf(&b, "Go Version: %s\n", runtime.Version())
	fmt.Fprintf(&b, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "\nPanic Value:\n%v\n", panicValue)
	fmt.Fprintf(&b, "\nStack Trace:\n%s\n", stack)
	fmt.Fprintf(&b, "\nBuild Info:\n%s\n", buildInfo())

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write crash log: %w", err)
	}

	go cleanupOldCrashLogs(dir)
	return path, nil
}

func buildInfo() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.String()
	}
	return "Build info not available"
}

// RecoverAndLog recovers a panic, reports it and writes a crash file.
//
//	defer logging.RecoverAndLog("WebSocket hub", true)
//
// With rePanic set the panic continues after logging, for goroutines the
// process cannot run without.
func RecoverAndLog(where string, rePanic bool) {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()

	CapturePanic(r, stack, where)
	Error(CatSystem, fmt.Sprintf("PANIC in %s: %v", where, r), map[string]any{
		"panic": fmt.Sprintf("%v", r),
		"stack": string(stack),
	})

	if path, err := WriteCrashLog(where, r, stack); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write crash log: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "Crash log written to: %s\n", path)
	}

	if rePanic {
		panic(r)
	}
}

// listCrashLogs returns the crash files in dir, newest first.
func listCrashLogs(dir string) ([]CrashLogInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	logs := make([]CrashLogInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isCrashLogName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, CrashLogInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// Names embed the timestamp
	sort.Slice(logs, func(i, j int) bool { return logs[i].Name > logs[j].Name })
	return logs, nil
}

// GetCrashLogs returns up to limit crash files, newest first.
func GetCrashLogs(limit int) ([]CrashLogInfo, error) {
	logs, err := listCrashLogs(CrashLogDir())
	if os.IsNotExist(err) {
		return []CrashLogInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// ReadCrashLog returns the contents of a crash file by name.
func ReadCrashLog(name string) (string, error) {
	if filepath.Base(name) != name || !isCrashLogName(name) {
		return "", fmt.Errorf("invalid crash log name %q", name)
	}

	content, err := os.ReadFile(filepath.Join(CrashLogDir(), name))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// cleanupOldCrashLogs keeps the newest MaxCrashLogs files and drops anything
// older than CrashLogMaxAge.
func cleanupOldCrashLogs(dir string) {
	logs, err := listCrashLogs(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-CrashLogMaxAge)
	for i, l := range logs {
		if i >= MaxCrashLogs || l.ModTime.Before(cutoff) {
			_ = os.Remove(l.Path)
		}
	}
}
