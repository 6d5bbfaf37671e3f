package logger

import (
	"fmt"
	"os"
	"path/filepath"
)

// OutputConfig describes where the managed process writes stdout/stderr.
// If StdoutPath/StderrPath are empty and Dir is set, files will be
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
//
// The managed process is detached and outlives the supervisor, so it gets
// plain file descriptors instead of a pipe. Rotation therefore happens once
// per launch: the previous file is rotated (lumberjack naming and retention)
// before the new process starts.
type OutputConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout" mapstructure:"stdout"`
	StderrPath string `json:"stderr" mapstructure:"stderr"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Enabled reports whether any output destination is configured.
func (c OutputConfig) Enabled() bool {
	return c.Dir != "" || c.StdoutPath != "" || c.StderrPath != ""
}

// Paths resolves the stdout and stderr file paths for the given process name.
func (c OutputConfig) Paths(name string) (string, string) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	return stdout, stderr
}

// Open rotates any previous output and opens fresh files for the process.
// A nil file means the stream is not configured. When stdout and stderr
// resolve to the same path the same file is returned twice.
// The caller owns the returned files and closes them once the child started.
func (c OutputConfig) Open(name string) (*os.File, *os.File, error) {
	stdoutPath, stderrPath := c.Paths(name)
	stdout, err := c.open(stdoutPath)
	if err != nil {
		return nil, nil, err
	}
	if stderrPath == stdoutPath {
		return stdout, stdout, nil
	}
	stderr, err := c.open(stderrPath)
	if err != nil {
		if stdout != nil {
			_ = stdout.Close()
		}
		return nil, nil, err
	}
	return stdout, stderr, nil
}

func (c OutputConfig) open(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		rot := FileConfig{MaxBackups: c.MaxBackups, MaxAgeDays: c.MaxAgeDays, Compress: c.Compress}.writer(path)
		if err := rot.Rotate(); err != nil {
			return nil, fmt.Errorf("rotate %s: %w", path, err)
		}
		_ = rot.Close()
	}
	// #nosec G304 path comes from supervisor configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return f, nil
}
