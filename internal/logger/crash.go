// Package logger provides crash logging: panics are captured to a JSON
// file under the data directory so a failed run leaves something to
// debug with instead of a scrolled-away stack trace.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

const (
	// crashLogDir is the directory for crash logs inside the data dir.
	crashLogDir = "crash_logs"

	// maxCrashLogs bounds how many crash logs are kept.
	maxCrashLogs = 10
)

type crashContext struct {
	mu       sync.RWMutex
	command  string
	version  string
	basePath string
}

var globalContext = &crashContext{}

// SetBasePath sets where crash logs land, typically the grove data dir.
func SetBasePath(path string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.basePath = path
}

// SetVersion records the application version for crash logs.
func SetVersion(version string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.version = version
}

// SetCommand records the command currently executing.
func SetCommand(cmd string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.command = cmd
}

// CrashLog is one captured panic.
type CrashLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Command    string    `json:"command"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
	GoVersion  string    `json:"go_version"`
	OS         string    `json:"os"`
	Arch       string    `json:"arch"`
}

// HandlePanic recovers a panic, writes the crash log and exits.
// Usage: defer logger.HandlePanic()
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}
	log := newCrashLog(r)
	path, err := writeCrashLog(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\ngrove crashed: %v\n%s\n", r, debug.Stack())
		fmt.Fprintf(os.Stderr, "(crash log could not be written: %v)\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "\ngrove encountered an unexpected error: %v\n", r)
	fmt.Fprintf(os.Stderr, "a crash log has been saved to %s\n", path)
	os.Exit(1)
}

func newCrashLog(panicValue any) CrashLog {
	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()
	return CrashLog{
		Timestamp:  time.Now(),
		Version:    globalContext.version,
		Command:    globalContext.command,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

func writeCrashLog(log CrashLog) (string, error) {
	globalContext.mu.RLock()
	base := globalContext.basePath
	globalContext.mu.RUnlock()
	if base == "" {
		base = "."
	}

	dir := filepath.Join(base, crashLogDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, log.Timestamp.Format("crash_20060102_150405.json"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	pruneOldLogs(dir)
	return path, nil
}

// pruneOldLogs keeps only the newest maxCrashLogs files. Best effort.
func pruneOldLogs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) <= maxCrashLogs {
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-maxCrashLogs] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
