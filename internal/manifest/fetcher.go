package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultAuthScheme = "Bearer"

	// maxManifestBytes bounds the manifest body; it is a small JSON document.
	maxManifestBytes = 1 << 20
)

// Config describes the manifest source.
type Config struct {
	URL        string
	Token      string        // sent as "Authorization: <AuthScheme> <Token>" when set
	AuthScheme string        // default "Bearer"; GitHub raw content uses "token"
	Timeout    time.Duration // whole request, default 30s
	UserAgent  string
}

// Fetcher retrieves the remote descriptor. It never retries.
type Fetcher struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = DefaultAuthScheme
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Fetch downloads and parses the manifest.
func (f *Fetcher) Fetch(ctx context.Context) (Descriptor, error) {
	u, err := f.bustedURL()
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: invalid manifest URL: %v", ErrNetwork, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", f.cfg.AuthScheme+" "+f.cfg.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxManifestBytes))
		return Descriptor{}, &RemoteError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes+1))
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}
	if len(body) > maxManifestBytes {
		return Descriptor{}, fmt.Errorf("%w: manifest larger than %d bytes", ErrParse, maxManifestBytes)
	}
	return Parse(body)
}

// bustedURL appends a unique query parameter so intermediaries never serve a
// stale manifest.
func (f *Fetcher) bustedURL() (string, error) {
	raw := strings.TrimSpace(f.cfg.URL)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(f.now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
