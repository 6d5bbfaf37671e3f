//go:build !windows

package process

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	sysconf "github.com/tklauser/go-sysconf"
)

// procStartUnix returns the process start time as Unix seconds, or 0.
// Linux reads /proc directly; other unixes go through gopsutil (sysctl).
func procStartUnix(ctx context.Context, p *gopsproc.Process) int64 {
	if runtime.GOOS == "linux" {
		if ts := procStartLinux(int(p.Pid)); ts > 0 {
			return ts
		}
	}
	ms, err := p.CreateTimeWithContext(ctx)
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}

func procStartLinux(pid int) int64 {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0
	}
	line := string(b)
	// comm may contain spaces; it ends at the last ") "
	end := strings.LastIndex(line, ") ")
	if end == -1 {
		return 0
	}
	fields := strings.Fields(line[end+2:])
	// starttime is field 22 overall, 20th after comm
	if len(fields) < 20 {
		return 0
	}
	ticks, err := strconv.ParseInt(fields[19], 10, 64)
	if err != nil || ticks <= 0 {
		return 0
	}
	btime := bootTime()
	if btime == 0 {
		return 0
	}
	clk, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || clk <= 0 {
		clk = 100
	}
	return btime + ticks/clk
}

func bootTime() int64 {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()
	s := bufio.NewScanner(f)
	for s.Scan() {
		if v, ok := strings.CutPrefix(s.Text(), "btime "); ok {
			bt, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err == nil {
				return bt
			}
			return 0
		}
	}
	return 0
}
