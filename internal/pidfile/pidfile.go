// Package pidfile implements the gateway process's PID file lifecycle:
// on start the process writes <configDir>/server.pid describing
// itself, on normal exit it removes it, and a reader can tell a stale
// file (left behind by a crash) from a live one.
package pidfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// FileName is the fixed basename written under the configured config
// directory.
const FileName = "server.pid"

// Info is the JSON shape written to the PID file.
type Info struct {
	PID       int       `json:"pid"`
	URL       string    `json:"url"`
	Port      int       `json:"port,omitempty"`
	Host      string    `json:"host,omitempty"`
	Transport string    `json:"transport"`
	StartedAt time.Time `json:"startedAt"`
	ConfigDir string    `json:"configDir"`
}

// Path returns the PID file path for a given config directory.
func Path(configDir string) string {
	return filepath.Join(configDir, FileName)
}

// Write records info at <configDir>/server.pid, overwriting any existing
// file. info.PID is forced to the calling process's own pid regardless of
// what the caller populated, since a PID file can only ever describe the
// process writing it.
func Write(configDir string, info Info) error {
	info.PID = os.Getpid()
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	info.ConfigDir = configDir

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pid file: %w", err)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir %q: %w", configDir, err)
	}

	return os.WriteFile(Path(configDir), data, 0o644)
}

// Remove deletes the PID file for configDir. It is a no-op if the file
// does not exist.
func Remove(configDir string) error {
	err := os.Remove(Path(configDir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read loads and parses the PID file at configDir, without checking
// liveness.
func Read(configDir string) (Info, error) {
	var info Info
	data, err := os.ReadFile(Path(configDir))
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("parse pid file: %w", err)
	}
	return info, nil
}

// ReadLive loads the PID file at configDir and reports ok=false if it is
// missing, corrupt, or stale (its PID is no longer alive) — the reader
// never needs to distinguish these cases.
func ReadLive(configDir string) (Info, bool) {
	info, err := Read(configDir)
	if err != nil {
		return Info{}, false
	}
	if !alive(info.PID) {
		return Info{}, false
	}
	return info, true
}

// alive reports whether pid names a live process, using the
// signal-0 idiom: sending signal 0 performs error checking without
// actually delivering a signal.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}
