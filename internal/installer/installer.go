// Package installer downloads the managed executable and puts it in place.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrDownload wraps transport failures and non-2xx answers.
	ErrDownload = errors.New("installer: download failed")
	// ErrIO wraps local disk failures.
	ErrIO = errors.New("installer: io error")
)

// Config controls how artifacts are requested. Token is only sent when set;
// callers decide whether downloads are authenticated.
type Config struct {
	Token      string
	AuthScheme string
	UserAgent  string
	// Timeout bounds the whole download; zero leaves it to the context.
	Timeout time.Duration
}

type Installer struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Installer {
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	return &Installer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Install streams url into dest. The body goes to a temporary file next to
// dest which is flushed, made executable and renamed over dest only once the
// download is complete; on failure dest is untouched.
func (in *Installer) Install(ctx context.Context, url, dest string) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrIO, dir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	if in.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", in.cfg.UserAgent)
	}
	if in.cfg.Token != "" {
		req.Header.Set("Authorization", in.cfg.AuthScheme+" "+in.cfg.Token)
	}

	resp, err := in.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: unexpected HTTP status %s", ErrDownload, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".download-*")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(fileWriter{tmp}, resp.Body)
	if err != nil {
		// a failing reader is the network, a failing writer is the disk
		var werr *writeError
		if errors.As(err, &werr) {
			return n, fmt.Errorf("%w: write %s: %w", ErrIO, tmpName, werr.err)
		}
		return n, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	// #nosec G302 the artifact is an executable
	if err := os.Chmod(tmpName, 0o755); err != nil {
		return n, fmt.Errorf("%w: chmod: %w", ErrIO, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return n, fmt.Errorf("%w: replace %s: %w", ErrIO, dest, err)
	}
	committed = true
	return n, nil
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// fileWriter tags write failures so Install can tell disk errors from a
// broken download stream.
type fileWriter struct{ f *os.File }

func (w fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, &writeError{err: err}
	}
	return n, nil
}
