// Package exec provides the child process driver: spawning, a zero-signal
// liveness probe, and non-blocking reaping, isolated behind an interface
// so the supervisor loop can be tested without real processes.
package exec

import (
	"os"
	goexec "os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ReapOutcome is the result of a single non-blocking reap attempt.
type ReapOutcome int

const (
	// ReapStillRunning means the child has not changed state since the
	// last reap; the caller should poll again later.
	ReapStillRunning ReapOutcome = iota
	// ReapExited means the child called exit() or returned from main.
	ReapExited
	// ReapSignaled means the child was killed by a signal.
	ReapSignaled
	// ReapStopped means the child was stopped by a signal (e.g. SIGSTOP).
	ReapStopped
	// ReapNoChild means the OS has no record of this child anymore
	// (ECHILD) — treated the same as a confirmed exit.
	ReapNoChild
)

// Process is a single spawned child, abstracted so tests can substitute a
// fake that doesn't fork a real OS process.
type Process interface {
	PID() int
	// Signal sends sig to the process. Sending to an already-gone
	// process is not an error (ESRCH is swallowed).
	Signal(sig syscall.Signal) error
	// Kill sends SIGKILL.
	Kill() error
	// IsRunning performs the zero-signal liveness probe: ESRCH means
	// not running, EPERM is assumed running (conservative), any other
	// error is also treated as running (and should be logged by the
	// caller, which has more context to log with).
	IsRunning() (running bool, probeErr error)
	// Reap performs one non-blocking wait attempt.
	Reap() (ReapOutcome, error)
}

type realProcess struct{ pid int }

// StartProcess forks and execs argv, detaching into a new session (so the
// child loses the supervisor's controlling terminal) and resolving argv[0]
// against PATH the same way a shell would.
func StartProcess(argv []string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}

	path, err := goexec.LookPath(argv[0])
	if err != nil {
		return nil, errors.Wrap(err, "resolve command path")
	}

	attr := &os.ProcAttr{
		Env:   os.Environ(),
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}

	p, err := os.StartProcess(path, argv, attr)
	if err != nil {
		return nil, errors.Wrap(err, "start process")
	}

	// Stop package os from tracking this process; from here on, the pid
	// is managed directly with raw syscalls so reaping can be
	// non-blocking, which os.Process.Wait does not support.
	pid := p.Pid
	p.Release()

	return &realProcess{pid: pid}, nil
}

func (p *realProcess) PID() int { return p.pid }

func (p *realProcess) Signal(sig syscall.Signal) error {
	if p.pid <= 0 {
		return nil
	}
	if err := unix.Kill(p.pid, sig); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

func (p *realProcess) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

func (p *realProcess) IsRunning() (bool, error) {
	if p.pid <= 0 {
		return false, nil
	}

	// An exited child stays a zombie until reaped, and kill(pid, 0) still
	// finds a zombie; reap it first so the probe reports it gone.
	var ws unix.WaitStatus
	unix.Wait4(p.pid, &ws, unix.WNOHANG, nil)

	err := unix.Kill(p.pid, 0)
	switch err {
	case nil:
		return true, nil
	case unix.ESRCH:
		return false, nil
	case unix.EPERM:
		return true, nil
	default:
		return true, err
	}
}

func (p *realProcess) Reap() (ReapOutcome, error) {
	if p.pid <= 0 {
		return ReapNoChild, nil
	}

	var ws unix.WaitStatus
	wpid, err := unix.Wait4(p.pid, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
	if err != nil {
		if err == unix.ECHILD {
			return ReapNoChild, nil
		}
		return ReapStillRunning, err
	}
	if wpid == 0 {
		return ReapStillRunning, nil
	}

	switch {
	case ws.Exited():
		return ReapExited, nil
	case ws.Signaled():
		return ReapSignaled, nil
	case ws.Stopped():
		return ReapStopped, nil
	default:
		return ReapStillRunning, nil
	}
}
