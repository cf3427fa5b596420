package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const stamp = "20060102_150405"

// Files names everything one session writes under the logs directory.
// Per-session files carry the start time so restarts never clobber them.
type Files struct {
	Dir   string
	Name  string
	Start time.Time
}

// NewFiles creates the layout for a session starting at start.
func NewFiles(dir, name string, start time.Time) Files {
	return Files{Dir: dir, Name: name, Start: start}
}

// Ensure creates the logs directory.
func (f Files) Ensure() error {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return fmt.Errorf("creating logs directory %s: %w", f.Dir, err)
	}
	return nil
}

// Log is the session's text log.
func (f Files) Log() string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s.%s.log", f.Name, f.Start.Format(stamp)))
}

// InfluxBackup holds pull points buffered while InfluxDB is unreachable.
func (f Files) InfluxBackup() string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s.%s.influx.lp.gz", f.Name, f.Start.Format(stamp)))
}

// Status is rewritten in place by the status monitor, so it is not stamped.
func (f Files) Status() string {
	return filepath.Join(f.Dir, "status.json")
}
