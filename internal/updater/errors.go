package updater

import (
	"errors"

	"github.com/loykin/relaunchr/internal/installer"
	"github.com/loykin/relaunchr/internal/manifest"
	"github.com/loykin/relaunchr/internal/process"
	"github.com/loykin/relaunchr/internal/state"
)

// ErrAlreadyInProgress is returned synchronously when another run holds the
// guard. No work is started.
var ErrAlreadyInProgress = errors.New("update already in progress")

// Kind classifies why a run failed.
type Kind string

const (
	KindNetwork           Kind = "network"
	KindRemote            Kind = "remote"
	KindParse             Kind = "parse"
	KindIO                Kind = "io"
	KindLaunch            Kind = "launch"
	KindAlreadyInProgress Kind = "already_in_progress"
	KindUnknown           Kind = "unknown"
)

// Classify maps an error returned by a run to its Kind. A nil error has no
// kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var re *manifest.RemoteError
	switch {
	case errors.Is(err, ErrAlreadyInProgress):
		return KindAlreadyInProgress
	case errors.As(err, &re):
		return KindRemote
	case errors.Is(err, manifest.ErrNetwork), errors.Is(err, installer.ErrDownload):
		return KindNetwork
	case errors.Is(err, manifest.ErrParse):
		return KindParse
	case errors.Is(err, installer.ErrIO), errors.Is(err, state.ErrWrite):
		return KindIO
	case errors.Is(err, process.ErrLaunch):
		return KindLaunch
	}
	return KindUnknown
}

// Retryable reports whether running again later may succeed without any
// change on this side: transport failures and temporary remote answers.
func Retryable(err error) bool {
	var re *manifest.RemoteError
	if errors.As(err, &re) {
		return re.Temporary()
	}
	return Classify(err) == KindNetwork
}
