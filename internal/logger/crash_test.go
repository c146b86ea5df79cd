package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashLog(t *testing.T) {
	dir := t.TempDir()
	SetBasePath(dir)
	SetVersion("test")
	SetCommand("capture")

	path, err := writeCrashLog(newCrashLog("boom"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var log CrashLog
	require.NoError(t, json.Unmarshal(data, &log))
	assert.Equal(t, "boom", log.PanicValue)
	assert.Equal(t, "test", log.Version)
	assert.Equal(t, "capture", log.Command)
	assert.NotEmpty(t, log.StackTrace)
}

func TestPruneOldLogs(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxCrashLogs+4; i++ {
		name := base.Add(time.Duration(i) * time.Minute).Format("crash_20060102_150405.json")
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	pruneOldLogs(dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, maxCrashLogs)

	// Oldest files go first.
	oldest := base.Format("crash_20060102_150405.json")
	_, err = os.Stat(filepath.Join(dir, oldest))
	assert.True(t, os.IsNotExist(err), fmt.Sprintf("%s should have been pruned", oldest))
}
