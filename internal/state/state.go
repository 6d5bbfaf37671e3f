// Package state persists the last applied manifest next to the managed
// executable.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/relaunchr/internal/manifest"
)

const (
	// FileName is the record stored beside the managed executable.
	FileName = "local_config.json"
	// DefaultVersion stands for "nothing installed yet".
	DefaultVersion = "0.0.0"
)

var (
	// ErrNotFound means no record exists yet; it is not a failure.
	ErrNotFound = errors.New("state: no local record")
	// ErrWrite wraps failures persisting the record.
	ErrWrite = errors.New("state: write failed")
)

// Record is the locally persisted manifest. Only Version is interpreted;
// the remaining fields mirror the manifest for context.
type Record struct {
	Version     string              `json:"version"`
	Executable  manifest.Executable `json:"executable"`
	Environment map[string]string   `json:"environment_variables"`
}

// Path returns the record location for the given executable.
func Path(executable string) string {
	return filepath.Join(filepath.Dir(executable), FileName)
}

// Read loads the record. A missing file returns ErrNotFound.
func Read(path string) (Record, error) {
	// #nosec G304 path is derived from the configured executable
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("malformed %s: %w", filepath.Base(path), err)
	}
	return r, nil
}

// Write persists the entire manifest, indented, replacing the previous
// record atomically.
func Write(path string, d manifest.Descriptor) error {
	raw, err := d.JSON()
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}
	buf.WriteByte('\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmp, err := os.CreateTemp(dir, "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// LoadVersion returns the locally installed version, falling back to
// DefaultVersion when the record is absent, unreadable or malformed.
// Only the absent case is considered normal; the others are logged as
// warnings and the flow keeps going.
func LoadVersion(path string, log *slog.Logger) string {
	if log == nil {
		log = slog.Default()
	}
	r, err := Read(path)
	switch {
	case errors.Is(err, ErrNotFound):
		log.Info("no local record found", "path", path, "assumed_version", DefaultVersion)
		return DefaultVersion
	case err != nil:
		log.Warn("cannot read local record, assuming nothing installed", "path", path, "error", err)
		return DefaultVersion
	}
	v := strings.TrimSpace(r.Version)
	if v == "" {
		log.Warn("local record has no version, assuming nothing installed", "path", path)
		return DefaultVersion
	}
	log.Info("local version found", "version", v)
	return v
}
