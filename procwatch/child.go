package procwatch

import "strings"

// ManagedChild is one declared application: its static configuration plus
// the mutable runtime state the supervisor loop drives through a
// lifecycle. Lifetime of a ManagedChild equals the lifetime of the
// Supervisor; the child table never grows or shrinks.
type ManagedChild struct {
	// Static, from configuration. Name is compared case-insensitively
	// for rendezvous-file matching but stored case-preserved.
	Name                string
	Command             string
	StartDelaySeconds   int
	HeartbeatDelaySec   int
	HeartbeatIntervalSec int

	// Runtime state.
	PID                    int
	Started                bool
	FirstHeartbeatReceived bool
	LastHeartbeatAt        int64 // monotonic seconds, per Clock

	// argv is Command tokenized on ASCII spaces once, at load time.
	argv []string
}

// LowerName returns the name lower-cased, used for rendezvous-file
// matching ("start<app>" etc. compose with a lower-cased app name).
func (c *ManagedChild) LowerName() string {
	return strings.ToLower(c.Name)
}

// Argv returns the whitespace-tokenized command line.
func (c *ManagedChild) Argv() []string {
	return c.argv
}

// State names the coarse lifecycle states a ManagedChild moves through.
// Nothing in the package stores or computes a State: the loop drives
// behavior off the Started/PID/heartbeat fields directly.
type State int

const (
	StateIdle State = iota
	StateWaitingToStart
	StateRunning
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingToStart:
		return "waiting_to_start"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}
