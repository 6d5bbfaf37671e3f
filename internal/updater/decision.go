package updater

import (
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// NeedsUpdate decides whether the artifact must be (re)installed. Versions
// are compared as opaque strings: any difference, including a downgrade,
// installs the published one. A missing executable always needs an update
// so a deleted binary heals itself even when the record still matches.
func NeedsUpdate(force bool, local, remote string, executablePresent bool) bool {
	return force || remote != local || !executablePresent
}

// Change describes how remote relates to local, for logs only.
func Change(local, remote string) string {
	if local == remote {
		return "same"
	}
	lv, err1 := goversion.NewVersion(strings.TrimSpace(local))
	rv, err2 := goversion.NewVersion(strings.TrimSpace(remote))
	if err1 != nil || err2 != nil {
		return "changed"
	}
	switch lv.Compare(rv) {
	case -1:
		return "upgrade"
	case 1:
		return "downgrade"
	}
	// equal semver, different spelling ("1.0" vs "1.0.0")
	return "changed"
}
