package procwatch

import (
	"strings"
	"syscall"
	"time"

	"git.sysgarden.dev/ops/procwatch/procwatch/exec"
	"github.com/pkg/errors"
)

// Driver is the child process driver: spawn, liveness-check, and
// graceful-then-forced termination of a single child at a time. It
// holds no per-child state itself — that lives on ManagedChild — so a
// single Driver instance is shared across every child the Supervisor owns.
type Driver struct {
	// MaxWaitTermination bounds how long terminate() waits for a
	// graceful exit before escalating to SIGKILL.
	MaxWaitTermination time.Duration
	// MaxWaitStart bounds how long restart() waits for the new process
	// to report running before giving up.
	MaxWaitStart time.Duration

	// startProcess is overridden in tests to avoid forking real
	// processes.
	startProcess func(argv []string) (exec.Process, error)

	// live maps a child name to its process handle. A *ManagedChild
	// only carries the OS-level pid (part of the persisted-looking data
	// model); the live handle is driver-local so tests can substitute
	// fakes without touching ManagedChild.
	live map[string]exec.Process
}

// NewDriver returns a Driver wired to spawn real OS processes.
func NewDriver() *Driver {
	return &Driver{
		MaxWaitTermination: DefaultMaxWaitTermination,
		MaxWaitStart:       DefaultMaxWaitStart,
		startProcess:       exec.StartProcess,
		live:               make(map[string]exec.Process),
	}
}

func (d *Driver) handle(c *ManagedChild) exec.Process {
	return d.live[c.Name]
}

// Spawn forks and execs the child's command, setting PID/Started/
// FirstHeartbeatReceived and stamping LastHeartbeatAt so the first
// heartbeat's grace window starts from spawn.
func (d *Driver) Spawn(clock Clock, c *ManagedChild) error {
	p, err := d.startProcess(c.Argv())
	if err != nil {
		return errors.Wrapf(ErrSpawnFailed, "child %q: %v", c.Name, err)
	}

	d.live[c.Name] = p
	c.PID = p.PID()
	c.Started = true
	c.FirstHeartbeatReceived = false
	c.LastHeartbeatAt = clock.Monotonic()
	return nil
}

// IsRunning implements the zero-signal liveness probe. pid <= 0 always
// reports not running without consulting the OS.
func (d *Driver) IsRunning(c *ManagedChild, logf func(format string, args ...interface{})) bool {
	if c.PID <= 0 {
		return false
	}

	p := d.handle(c)
	if p == nil {
		return false
	}

	running, err := p.IsRunning()
	if err != nil && logf != nil {
		logf("is_running probe for %s returned an unexpected error, assuming running: %v", c.Name, err)
	}
	return running
}

// Terminate sends SIGTERM, polls with a non-blocking reap for up to
// MaxWaitTermination, then escalates to SIGKILL and re-probes once. On
// confirmed termination it clears Started/FirstHeartbeatReceived/PID. On
// an unconfirmed termination it returns ErrTerminateUnconfirmed and
// leaves the child record as Started=true so the next tick retries.
func (d *Driver) Terminate(c *ManagedChild) error {
	p := d.handle(c)
	if c.PID <= 0 || p == nil {
		return nil
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "terminate %s: send SIGTERM", c.Name)
	}

	deadline := time.Now().Add(d.MaxWaitTermination)
	for time.Now().Before(deadline) {
		outcome, err := p.Reap()
		if err != nil {
			return errors.Wrapf(err, "terminate %s: reap", c.Name)
		}
		if reapConfirmsExit(outcome) {
			d.clear(c)
			return nil
		}
		time.Sleep(time.Second)
	}

	// Graceful window elapsed; escalate.
	if err := p.Kill(); err != nil {
		return errors.Wrapf(err, "terminate %s: send SIGKILL", c.Name)
	}

	outcome, err := p.Reap()
	if err == nil && reapConfirmsExit(outcome) {
		d.clear(c)
		return nil
	}
	if running, _ := p.IsRunning(); !running {
		d.clear(c)
		return nil
	}

	return errors.Wrapf(ErrTerminateUnconfirmed, "child %q", c.Name)
}

func reapConfirmsExit(o exec.ReapOutcome) bool {
	switch o {
	case exec.ReapExited, exec.ReapSignaled, exec.ReapStopped, exec.ReapNoChild:
		return true
	default:
		return false
	}
}

func (d *Driver) clear(c *ManagedChild) {
	delete(d.live, c.Name)
	c.Started = false
	c.FirstHeartbeatReceived = false
	c.PID = 0
}

// Restart terminates the child if running, spawns it again, and waits up
// to MaxWaitStart for IsRunning to report true. On success it re-stamps
// LastHeartbeatAt, giving the first heartbeat another full heartbeat-delay
// window.
func (d *Driver) Restart(clock Clock, c *ManagedChild, logf func(format string, args ...interface{})) error {
	if d.IsRunning(c, logf) {
		if err := d.Terminate(c); err != nil {
			return err
		}
	}

	if err := d.Spawn(clock, c); err != nil {
		return err
	}

	deadline := time.Now().Add(d.MaxWaitStart)
	for time.Now().Before(deadline) {
		if d.IsRunning(c, logf) {
			c.LastHeartbeatAt = clock.Monotonic()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if logf != nil {
		logf("child %s did not report running within %s of restart", c.Name, d.MaxWaitStart)
	}
	return nil
}

// tokenizeCmd splits a command line on runs of whitespace. It does not
// implement shell quoting: a quoted argument containing spaces is split
// like any other text, and nothing rejects such a command.
func tokenizeCmd(cmd string) []string {
	fields := strings.Fields(cmd)
	return fields
}
