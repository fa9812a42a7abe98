package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempCrashDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetCrashLogDir(dir)
	t.Cleanup(func() { SetCrashLogDir("") })
	return dir
}

func TestCrashLogDir(t *testing.T) {
	assert.NotEmpty(t, CrashLogDir())

	dir := useTempCrashDir(t)
	assert.Equal(t, dir, CrashLogDir())
}

func TestWriteAndReadCrashLog(t *testing.T) {
	dir := useTempCrashDir(t)

	path, err := WriteCrashLog("HTTP GET /nfc-card-id", "test panic value", []byte("test stack trace"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	content, err := ReadCrashLog(filepath.Base(path))
	require.NoError(t, err)
	assert.Contains(t, content, "NFC Reader Crash Report")
	assert.Contains(t, content, "Context: HTTP GET /nfc-card-id")
	assert.Contains(t, content, "test panic value")
	assert.Contains(t, content, "test stack trace")

	logs, err := GetCrashLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, filepath.Base(path), logs[0].Name)
}

func TestReadCrashLogRejectsPaths(t *testing.T) {
	useTempCrashDir(t)

	_, err := ReadCrashLog("../settings.json")
	assert.Error(t, err)
}

func TestGetCrashLogsMissingDir(t *testing.T) {
	SetCrashLogDir(filepath.Join(t.TempDir(), "does-not-exist"))
	t.Cleanup(func() { SetCrashLogDir("") })

	logs, err := GetCrashLogs(10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestCleanupOldCrashLogs(t *testing.T) {
	dir := t.TempDir()

	numFiles := MaxCrashLogs + 5
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < numFiles; i++ {
		name := "crash_" + base.Add(time.Duration(i)*time.Hour).Format("2006-01-02_15-04-05") + ".log"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("test"), 0644))
	}

	other := filepath.Join(dir, "other.log")
	require.NoError(t, os.WriteFile(other, []byte("test"), 0644))

	cleanupOldCrashLogs(dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	crashCount := 0
	for _, e := range entries {
		if e.Name() != "other.log" {
			crashCount++
		}
	}
	assert.LessOrEqual(t, crashCount, MaxCrashLogs)
	assert.FileExists(t, other)
}

func TestReadCrashLogRejectsOtherFiles(t *testing.T) {
	dir := useTempCrashDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("secret"), 0644))

	_, err := ReadCrashLog("config.yaml")
	assert.Error(t, err)
}

func TestGetCrashLogsNewestFirst(t *testing.T) {
	dir := useTempCrashDir(t)
	for _, name := range []string{
		"crash_2026-01-01_00-00-00.000.log",
		"crash_2026-03-01_00-00-00.000.log",
		"crash_2026-02-01_00-00-00.000.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	logs, err := GetCrashLogs(2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "crash_2026-03-01_00-00-00.000.log", logs[0].Name)
	assert.Equal(t, "crash_2026-02-01_00-00-00.000.log", logs[1].Name)
}

func TestRecoverAndLog(t *testing.T) {
	useTempCrashDir(t)

	func() {
		defer RecoverAndLog("test goroutine", false)
		panic("boom")
	}()

	logs, err := GetCrashLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	content, err := ReadCrashLog(logs[0].Name)
	require.NoError(t, err)
	assert.Contains(t, content, "Context: test goroutine")
	assert.Contains(t, content, "boom")
}

func TestRecoverAndLogRePanics(t *testing.T) {
	useTempCrashDir(t)

	assert.PanicsWithValue(t, "fatal", func() {
		defer RecoverAndLog("critical", true)
		panic("fatal")
	})
}
