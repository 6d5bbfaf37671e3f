//go:build windows

package process

import (
	"context"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

func procStartUnix(ctx context.Context, p *gopsproc.Process) int64 {
	ms, err := p.CreateTimeWithContext(ctx)
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
