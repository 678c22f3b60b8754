package procwatch

import "time"

// Clock supplies monotonic seconds and wall-clock time to every component
// that makes a timing decision. Production code uses realClock; tests
// inject a fakeClock so timeout and reboot-scheduling tests run in
// milliseconds instead of real minutes.
//
// Heartbeat and uptime decisions MUST use Monotonic; only the statistics
// store's human-readable timestamps (started_at, crashed_at, ...) use
// WallNow.
type Clock interface {
	// Monotonic returns a monotonically increasing count of seconds. It
	// never needs to correspond to wall-clock time; only deltas between
	// calls matter.
	Monotonic() int64
	// WallNow returns the current wall-clock time, for display timestamps
	// and the reboot scheduler's daily-time check.
	WallNow() time.Time
}

type realClock struct{ start time.Time }

// NewRealClock returns a Clock backed by the process's monotonic clock
// reading (via time.Now(), which on Go includes a monotonic component)
// and the system wall clock.
func NewRealClock() Clock {
	return &realClock{start: time.Now()}
}

func (c *realClock) Monotonic() int64 {
	return int64(time.Since(c.start).Seconds())
}

func (c *realClock) WallNow() time.Time {
	return time.Now()
}

// fakeClock is a manually-advanced Clock for tests.
type fakeClock struct {
	mono int64
	wall time.Time
}

// NewFakeClock returns a Clock whose Monotonic() starts at 0 and whose
// WallNow() starts at the given time. Advance moves both forward together.
func NewFakeClock(wall time.Time) *fakeClock {
	return &fakeClock{wall: wall}
}

func (c *fakeClock) Monotonic() int64 { return c.mono }

func (c *fakeClock) WallNow() time.Time { return c.wall }

// Advance moves the clock forward by d, keeping Monotonic and WallNow in
// lockstep.
func (c *fakeClock) Advance(d time.Duration) {
	c.mono += int64(d.Seconds())
	c.wall = c.wall.Add(d)
}

// Rewind moves the monotonic clock backward without touching the wall
// clock, to exercise the ClockAnomaly path.
func (c *fakeClock) Rewind(d time.Duration) {
	c.mono -= int64(d.Seconds())
	if c.mono < 0 {
		c.mono = 0
	}
}
