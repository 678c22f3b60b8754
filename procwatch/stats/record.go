// Package stats implements the fixed-layout, per-child statistics
// record: running counts and min/avg/max heartbeat timings, persisted to
// a small binary file and mirrored to a human-readable summary.
package stats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// magic guards against loading a record from an incompatible or
// truncated file; it is procwatch's own value, unrelated to any prior
// implementation's on-disk format.
const magic uint32 = 0x50574731 // "PWG1"

// recordLayout is the exact wire encoding of Record, written and read via
// encoding/binary in field order. All timestamps are Unix seconds; all
// counts are uint64. Every field is fixed-width so the layout never
// depends on the host's int size.
type recordLayout struct {
	StartedAt              int64
	CrashedAt              int64
	HeartbeatResetAt       int64
	AvgFirstHeartbeatTime  int64
	MaxFirstHeartbeatTime  int64
	MinFirstHeartbeatTime  int64
	AvgHeartbeatTime       int64
	MaxHeartbeatTime       int64
	MinHeartbeatTime       int64
	CurrentCPUPercent      float64
	MinCPUPercent          float64
	MaxCPUPercent          float64
	AvgCPUPercent          float64
	CurrentRSSKiB          int64
	MinRSSKiB              int64
	MaxRSSKiB              int64
	AvgRSSKiB              int64
	StartCount             uint64
	CrashCount             uint64
	HeartbeatCount         uint64
	HeartbeatCountPrevious uint64
	HeartbeatResetCount    uint64
	ResourceSampleCount    uint64
	Magic                  uint32
}

// recordSize is the exact byte length of the persisted layout: 23
// eight-byte fields (int64, uint64, and float64 all encode to 8 bytes
// via encoding/binary) plus the trailing 4-byte magic.
const recordSize = 8*23 + 4

// Record holds one child's running statistics. It is not safe for
// concurrent use; callers serialize access the way the rest of the
// supervisor's per-child state is serialized, by only touching it from
// the single-threaded tick loop.
type Record struct {
	StartedAt              time.Time
	CrashedAt              time.Time
	HeartbeatResetAt       time.Time
	AvgFirstHeartbeatTime  time.Duration
	MaxFirstHeartbeatTime  time.Duration
	MinFirstHeartbeatTime  time.Duration
	AvgHeartbeatTime       time.Duration
	MaxHeartbeatTime       time.Duration
	MinHeartbeatTime       time.Duration

	// Resource aggregates, folded in every ResourceSampleInterval of
	// uptime while the child is running (see UpdateResourceSample).
	CurrentCPUPercent float64
	MinCPUPercent     float64
	MaxCPUPercent     float64
	AvgCPUPercent     float64 // exponential moving average, smoothing 0.1

	CurrentRSSKiB int64
	MinRSSKiB     int64
	MaxRSSKiB     int64
	AvgRSSKiB     int64 // true cumulative average over ResourceSampleCount

	StartCount             uint64
	CrashCount             uint64
	HeartbeatCount         uint64
	HeartbeatCountPrevious uint64
	HeartbeatResetCount    uint64
	ResourceSampleCount    uint64
}

// NewRecord returns a freshly zeroed record, equivalent to what loading a
// missing or corrupt file produces.
func NewRecord() *Record { return &Record{} }

// MarkStarted records a (re)start and clears the current heartbeat
// counter into HeartbeatCountPrevious, mirroring clearHeartbeatCount in
// the source this was ported from.
func (r *Record) MarkStarted(now time.Time) {
	r.StartedAt = now
	r.StartCount++
	r.clearHeartbeatCount()
}

// MarkCrashed records a detected crash (the liveness probe found the
// child dead without an intervening Terminate).
func (r *Record) MarkCrashed(now time.Time) {
	r.CrashedAt = now
	r.CrashCount++
	r.clearHeartbeatCount()
}

// MarkHeartbeatReset records a restart triggered by a stale heartbeat.
func (r *Record) MarkHeartbeatReset(now time.Time) {
	r.HeartbeatResetAt = now
	r.HeartbeatResetCount++
	r.clearHeartbeatCount()
}

func (r *Record) clearHeartbeatCount() {
	r.HeartbeatCountPrevious = r.HeartbeatCount
	r.HeartbeatCount = 0
}

// UpdateHeartbeatTime folds a regular (non-first) heartbeat's elapsed
// interval into the running average, min, and max.
func (r *Record) UpdateHeartbeatTime(elapsed time.Duration) {
	r.HeartbeatCount++
	r.AvgHeartbeatTime = runningAverage(r.AvgHeartbeatTime, r.HeartbeatCount, elapsed)

	if elapsed > r.MaxHeartbeatTime {
		r.MaxHeartbeatTime = elapsed
	}
	if elapsed < r.MinHeartbeatTime || r.HeartbeatCount == 1 {
		r.MinHeartbeatTime = elapsed
	}
}

// UpdateFirstHeartbeatTime folds the time-to-first-heartbeat since the
// most recent spawn into its own running average, min, and max. The
// divisor deliberately counts every spawn reason (clean start, crash
// restart, and heartbeat-timeout restart combined), matching how the
// average was defined upstream: it approximates "how long does this
// child typically take to report in after any restart", not just after a
// clean start.
func (r *Record) UpdateFirstHeartbeatTime(elapsed time.Duration) {
	n := r.StartCount + r.CrashCount + r.HeartbeatResetCount
	if n == 0 {
		n = 1
	}
	r.AvgFirstHeartbeatTime = runningAverage(r.AvgFirstHeartbeatTime, n, elapsed)

	if elapsed > r.MaxFirstHeartbeatTime {
		r.MaxFirstHeartbeatTime = elapsed
	}
	if elapsed < r.MinFirstHeartbeatTime || r.StartCount == 1 {
		r.MinFirstHeartbeatTime = elapsed
	}
}

func runningAverage(avg time.Duration, n uint64, sample time.Duration) time.Duration {
	if n == 0 {
		return sample
	}
	return time.Duration((int64(avg)*int64(n-1) + int64(sample)) / int64(n))
}

// cpuEMAAlpha is the exponential-moving-average smoothing factor applied
// to each CPU% sample.
const cpuEMAAlpha = 0.1

// UpdateResourceSample folds one CPU%/RSS sample into the running
// current/min/max/average aggregates. CPU% uses an exponential moving
// average with smoothing 0.1; RSS uses a true cumulative average over
// ResourceSampleCount, matching runningAverage's integer formula.
func (r *Record) UpdateResourceSample(cpuPercent float64, rssKiB int64) {
	r.ResourceSampleCount++
	r.CurrentCPUPercent = cpuPercent
	r.CurrentRSSKiB = rssKiB

	if r.ResourceSampleCount == 1 {
		r.AvgCPUPercent = cpuPercent
		r.MinCPUPercent = cpuPercent
		r.MaxCPUPercent = cpuPercent
		r.AvgRSSKiB = rssKiB
		r.MinRSSKiB = rssKiB
		r.MaxRSSKiB = rssKiB
		return
	}

	r.AvgCPUPercent = cpuEMAAlpha*cpuPercent + (1-cpuEMAAlpha)*r.AvgCPUPercent
	if cpuPercent < r.MinCPUPercent {
		r.MinCPUPercent = cpuPercent
	}
	if cpuPercent > r.MaxCPUPercent {
		r.MaxCPUPercent = cpuPercent
	}

	n := int64(r.ResourceSampleCount)
	r.AvgRSSKiB = (r.AvgRSSKiB*(n-1) + rssKiB) / n
	if rssKiB < r.MinRSSKiB {
		r.MinRSSKiB = rssKiB
	}
	if rssKiB > r.MaxRSSKiB {
		r.MaxRSSKiB = rssKiB
	}
}

// Marshal encodes r into its fixed-layout binary form.
func (r *Record) Marshal() []byte {
	l := recordLayout{
		StartedAt:              unixOrZero(r.StartedAt),
		CrashedAt:              unixOrZero(r.CrashedAt),
		HeartbeatResetAt:       unixOrZero(r.HeartbeatResetAt),
		AvgFirstHeartbeatTime:  int64(r.AvgFirstHeartbeatTime),
		MaxFirstHeartbeatTime:  int64(r.MaxFirstHeartbeatTime),
		MinFirstHeartbeatTime:  int64(r.MinFirstHeartbeatTime),
		AvgHeartbeatTime:       int64(r.AvgHeartbeatTime),
		MaxHeartbeatTime:       int64(r.MaxHeartbeatTime),
		MinHeartbeatTime:       int64(r.MinHeartbeatTime),
		CurrentCPUPercent:      r.CurrentCPUPercent,
		MinCPUPercent:          r.MinCPUPercent,
		MaxCPUPercent:          r.MaxCPUPercent,
		AvgCPUPercent:          r.AvgCPUPercent,
		CurrentRSSKiB:          r.CurrentRSSKiB,
		MinRSSKiB:              r.MinRSSKiB,
		MaxRSSKiB:              r.MaxRSSKiB,
		AvgRSSKiB:              r.AvgRSSKiB,
		StartCount:             r.StartCount,
		CrashCount:             r.CrashCount,
		HeartbeatCount:         r.HeartbeatCount,
		HeartbeatCountPrevious: r.HeartbeatCountPrevious,
		HeartbeatResetCount:    r.HeartbeatResetCount,
		ResourceSampleCount:    r.ResourceSampleCount,
		Magic:                  magic,
	}

	buf := bytes.NewBuffer(make([]byte, 0, recordSize))
	// binary.Write on a fixed-size struct of fixed-width fields cannot
	// fail; the error is checked defensively only in Unmarshal, where the
	// input is untrusted.
	_ = binary.Write(buf, binary.LittleEndian, l)
	return buf.Bytes()
}

// Unmarshal decodes b into r. If b is short, malformed, or its magic
// doesn't match, ok is false and r is left as a zeroed Record — the
// caller's cue to treat this the same as a missing file.
func Unmarshal(b []byte) (r *Record, ok bool) {
	if len(b) != recordSize {
		return NewRecord(), false
	}

	var l recordLayout
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &l); err != nil {
		return NewRecord(), false
	}
	if l.Magic != magic {
		return NewRecord(), false
	}

	return &Record{
		StartedAt:              timeOrZero(l.StartedAt),
		CrashedAt:              timeOrZero(l.CrashedAt),
		HeartbeatResetAt:       timeOrZero(l.HeartbeatResetAt),
		AvgFirstHeartbeatTime:  time.Duration(l.AvgFirstHeartbeatTime),
		MaxFirstHeartbeatTime:  time.Duration(l.MaxFirstHeartbeatTime),
		MinFirstHeartbeatTime:  time.Duration(l.MinFirstHeartbeatTime),
		AvgHeartbeatTime:       time.Duration(l.AvgHeartbeatTime),
		MaxHeartbeatTime:       time.Duration(l.MaxHeartbeatTime),
		MinHeartbeatTime:       time.Duration(l.MinHeartbeatTime),
		CurrentCPUPercent:      l.CurrentCPUPercent,
		MinCPUPercent:          l.MinCPUPercent,
		MaxCPUPercent:          l.MaxCPUPercent,
		AvgCPUPercent:          l.AvgCPUPercent,
		CurrentRSSKiB:          l.CurrentRSSKiB,
		MinRSSKiB:              l.MinRSSKiB,
		MaxRSSKiB:              l.MaxRSSKiB,
		AvgRSSKiB:              l.AvgRSSKiB,
		StartCount:             l.StartCount,
		CrashCount:             l.CrashCount,
		HeartbeatCount:         l.HeartbeatCount,
		HeartbeatCountPrevious: l.HeartbeatCountPrevious,
		HeartbeatResetCount:    l.HeartbeatResetCount,
		ResourceSampleCount:    l.ResourceSampleCount,
	}, true
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// Summary renders r as the human-readable text form mirrored alongside
// the binary record.
func (r *Record) Summary(name string) string {
	fmtTime := func(t time.Time) string {
		if t.IsZero() {
			return "Never"
		}
		return t.Format("2006-01-02 15:04:05")
	}

	return "Statistics for " + name + ":\n" +
		"Started at: " + fmtTime(r.StartedAt) + "\n" +
		"Crashed at: " + fmtTime(r.CrashedAt) + "\n" +
		"Heartbeat reset at: " + fmtTime(r.HeartbeatResetAt) + "\n" +
		fmt.Sprintf("CPU%%: current %.1f, min %.1f, max %.1f, avg %.1f\n",
			r.CurrentCPUPercent, r.MinCPUPercent, r.MaxCPUPercent, r.AvgCPUPercent) +
		fmt.Sprintf("RSS KiB: current %d, min %d, max %d, avg %d\n",
			r.CurrentRSSKiB, r.MinRSSKiB, r.MaxRSSKiB, r.AvgRSSKiB) +
		fmt.Sprintf("Resource sample count: %d\n", r.ResourceSampleCount)
}
