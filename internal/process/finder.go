package process

import (
	"context"
	"os"
	"slices"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Lister is the gopsutil backed Finder.
type Lister struct{}

func (Lister) ListByName(ctx context.Context, name string) ([]Instance, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	var out []Instance
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		// processes vanish while we iterate; errors here mean "gone" or
		// "not ours to inspect" and both are skipped
		pname, _ := p.NameWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)
		if !matchName(pname, exe, name) {
			continue
		}
		if st, err := p.StatusWithContext(ctx); err == nil && slices.Contains(st, gopsproc.Zombie) {
			continue
		}
		inst := Instance{PID: int(p.Pid), Name: pname, Exe: exe}
		if ts := procStartUnix(ctx, p); ts > 0 {
			inst.StartedAt = time.Unix(ts, 0)
		}
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			inst.RSSBytes = mi.RSS
		}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			inst.CPUPercent = cpu
		}
		out = append(out, inst)
	}
	return out, nil
}
