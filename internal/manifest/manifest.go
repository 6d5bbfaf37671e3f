// Package manifest fetches the remotely published descriptor of the latest
// managed executable.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Descriptor is the remote manifest:
//
//	{
//	  "version": "1.3.0",
//	  "executable": {"url": "https://host/app"},
//	  "environment_variables": {"A": "1"}
//	}
//
// Raw keeps the body as received so it can be persisted verbatim.
type Descriptor struct {
	Version     string            `json:"version"`
	Executable  Executable        `json:"executable"`
	Environment map[string]string `json:"environment_variables"`

	Raw json.RawMessage `json:"-"`
}

type Executable struct {
	URL string `json:"url"`
}

// Parse decodes and validates a manifest body.
func Parse(body []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	d.Version = strings.TrimSpace(d.Version)
	if d.Version == "" {
		return Descriptor{}, fmt.Errorf("%w: missing version", ErrParse)
	}
	if strings.TrimSpace(d.Executable.URL) == "" {
		return Descriptor{}, fmt.Errorf("%w: missing executable.url", ErrParse)
	}
	d.Raw = append(json.RawMessage(nil), body...)
	return d, nil
}

// JSON returns the manifest as it should be persisted: the original body when
// available, otherwise the encoded struct.
func (d Descriptor) JSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	return json.Marshal(d)
}
