package manifest

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork wraps transport failures (connection refused, DNS, timeout).
	ErrNetwork = errors.New("manifest: network error")
	// ErrParse wraps malformed or incomplete manifest bodies.
	ErrParse = errors.New("manifest: parse error")
)

// RemoteError reports a non-2xx answer from the manifest source.
type RemoteError struct {
	StatusCode int
	Status     string
}

func (e *RemoteError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("manifest: authentication failed (%s); check the access token", e.Status)
	case http.StatusNotFound:
		return fmt.Sprintf("manifest: not found (%s); check the manifest URL", e.Status)
	}
	return fmt.Sprintf("manifest: remote returned %s", e.Status)
}

// Temporary reports whether retrying later may succeed.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
