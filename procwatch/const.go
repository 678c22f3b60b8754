package procwatch

import "time"

// Build-time limits. MaxApps is left at the source default; raise it
// here and rebuild if a deployment needs more than six managed children.
const (
	// MaxApps bounds the number of [app:*] sections a config may declare.
	MaxApps = 6
	// MaxAppNameLength bounds a child's name, not counting the trailing NUL.
	MaxAppNameLength = 31
	// MaxAppCmdLength bounds a child's command line, not counting the
	// trailing NUL.
	MaxAppCmdLength = 255
	// MaxAppCmdDatagram is the wire buffer size for both cmd strings and
	// UDP datagrams sharing the same historical bound.
	MaxAppCmdDatagram = MaxAppCmdLength + 1
)

// Default timeouts, overridable per-instance for tests.
const (
	// TickInterval bounds a single loop iteration; it is also the UDP
	// poll timeout.
	TickInterval = 500 * time.Millisecond

	// DefaultMaxWaitStart is how long restart() waits for is_running to
	// report true after a fresh spawn.
	DefaultMaxWaitStart = 5 * time.Second

	// DefaultMaxWaitTermination is the graceful-kill deadline before a
	// forced SIGKILL is sent.
	DefaultMaxWaitTermination = 30 * time.Second

	// ResourceSampleInterval is how often (in uptime) CPU/RSS are sampled
	// for a running child.
	ResourceSampleInterval = 60 * time.Second

	// StatsPersistInterval is how often (in uptime) all children's
	// statistics are flushed to disk.
	StatsPersistInterval = 15 * time.Minute
)

// Process exit codes, returned by Run and interpreted by a surrounding
// shell script to decide whether to relaunch or reboot.
const (
	ExitNormal  = 0 // operator requested stop, or USR1
	ExitFatal   = 1 // fatal startup error
	ExitRestart = 2 // restart-me: operator INT/TERM, wdtrestart, or UDP bind failure
	ExitReboot  = 3 // reboot host: wdtreboot, QUIT signal, periodic reboot fire
)

// usr1StuckLimit is the number of repeated USR1 signals after which the
// process exits immediately without cleanup.
const usr1StuckLimit = 10
