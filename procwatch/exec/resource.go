package exec

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ClockTicksPerSec is the kernel's USER_HZ, needed to turn
// UtimeTicks/StimeTicks into wall-clock seconds. The Linux kernel fixes
// this at 100 regardless of the compiled tick rate (see proc(5), the
// "utime" field description) and does not expose a portable syscall to
// query it without cgo, so it is a constant rather than a sysconf(3)
// call.
const ClockTicksPerSec = 100

// ResourceUsage is a point-in-time CPU/memory sample for a running
// child, read from procfs.
type ResourceUsage struct {
	UtimeTicks int64
	StimeTicks int64
	RSSKiB     int64
}

// ReadResourceUsage samples /proc/<pid>/stat and /proc/<pid>/status for
// CPU ticks and resident memory. It returns an error if the process has
// already exited by the time of the read — a benign race the caller
// should log, not treat as fatal, since the main loop's own liveness
// probe is the authority on whether the child is still running.
func ReadResourceUsage(pid int) (ResourceUsage, error) {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return ResourceUsage{}, err
	}

	// Fields after the process name (itself parenthesized and possibly
	// containing spaces) are space-delimited; utime/stime are fields 14
	// and 15 (1-indexed) of the whole record.
	close := strings.LastIndexByte(string(stat), ')')
	if close < 0 || close+2 >= len(stat) {
		return ResourceUsage{}, fmt.Errorf("exec: malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(string(stat[close+2:]))
	if len(fields) < 14 {
		return ResourceUsage{}, fmt.Errorf("exec: /proc/%d/stat has too few fields", pid)
	}

	utime, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return ResourceUsage{}, err
	}
	stime, err := strconv.ParseInt(fields[12], 10, 64)
	if err != nil {
		return ResourceUsage{}, err
	}

	rss, err := readVmRSS(pid)
	if err != nil {
		return ResourceUsage{}, err
	}

	return ResourceUsage{UtimeTicks: utime, StimeTicks: stime, RSSKiB: rss}, nil
}

func readVmRSS(pid int) (int64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("exec: malformed VmRSS line for pid %d", pid)
		}
		return strconv.ParseInt(fields[1], 10, 64)
	}
	return 0, fmt.Errorf("exec: no VmRSS field found for pid %d", pid)
}
