package procwatch

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error-taxonomy kind from the design. Call sites
// wrap these with github.com/pkg/errors.Wrap to attach context; callers
// that need to distinguish the kind use errors.Is against these values.
var (
	// ErrConfigInvalid means the config file is missing, unparsable, or a
	// field violates its bound. Fatal at startup.
	ErrConfigInvalid = errors.New("procwatch: invalid configuration")

	// ErrSpawnFailed means fork/exec failed for a child. Non-fatal; the
	// child stays unstarted and the next tick retries.
	ErrSpawnFailed = errors.New("procwatch: failed to spawn child")

	// ErrTerminateUnconfirmed means the graceful-then-forced kill sequence
	// did not confirm the child's exit.
	ErrTerminateUnconfirmed = errors.New("procwatch: could not confirm child termination")

	// ErrUDPFatal means the UDP endpoint failed: its socket could not be
	// bound at startup, or a receive failed unrecoverably and the loop
	// must exit.
	ErrUDPFatal = errors.New("procwatch: UDP endpoint failed")

	// ErrStatsCorrupt means a statistics record's magic did not match on
	// load; the record was zeroed and re-stamped.
	ErrStatsCorrupt = errors.New("procwatch: statistics record corrupt")
)

// OpError is an error produced by a specific named operation on a specific
// child, wrapping an underlying cause. It gives log lines and test
// assertions a stable shape to match against instead of parsing strings.
type OpError struct {
	Op    string // e.g. "spawn", "terminate", "stats.load"
	Child string // child name, empty if not child-scoped
	Err   error
}

func (e *OpError) Error() string {
	if e.Child == "" {
		return fmt.Sprintf("procwatch: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("procwatch: %s %s: %v", e.Op, e.Child, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
