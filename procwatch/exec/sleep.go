package exec

import (
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// sleepProcess is a fake Process used in tests: it "runs" for a duration
// and can be told to ignore SIGTERM for a grace period before it "exits",
// so the termination-escalation path can be exercised without forking
// anything.
type sleepProcess struct {
	mu         sync.Mutex
	pid        int
	runFor     time.Duration
	ignoreTerm time.Duration // how long SIGTERM is ignored before exiting

	started  time.Time
	killedAt *time.Time
	termedAt *time.Time
	reaped   int32 // atomic bool: true once Reap has reported a terminal outcome once
}

// NewSleepProcess creates a fake process with the given pid that "runs"
// for runFor before exiting on its own, or until killed. If ignoreTerm is
// positive, SIGTERM is "ignored" for that long before the process reacts,
// simulating a child that takes a while to shut down gracefully.
func NewSleepProcess(pid int, runFor, ignoreTerm time.Duration) Process {
	return &sleepProcess{
		pid:        pid,
		runFor:     runFor,
		ignoreTerm: ignoreTerm,
		started:    time.Now(),
	}
}

func (m *sleepProcess) PID() int { return m.pid }

func (m *sleepProcess) Signal(sig syscall.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	switch sig {
	case syscall.SIGKILL:
		if m.killedAt == nil {
			m.killedAt = &now
		}
	case syscall.SIGTERM:
		if m.termedAt == nil {
			m.termedAt = &now
		}
	}
	return nil
}

func (m *sleepProcess) Kill() error {
	return m.Signal(syscall.SIGKILL)
}

func (m *sleepProcess) exitedLocked(now time.Time) bool {
	if m.killedAt != nil {
		return true
	}
	if m.termedAt != nil && now.Sub(*m.termedAt) >= m.ignoreTerm {
		return true
	}
	return now.Sub(m.started) >= m.runFor
}

func (m *sleepProcess) IsRunning() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.exitedLocked(time.Now()), nil
}

func (m *sleepProcess) Reap() (ReapOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exitedLocked(time.Now()) {
		return ReapStillRunning, nil
	}
	if !atomic.CompareAndSwapInt32(&m.reaped, 0, 1) {
		// Already reported a terminal outcome once; subsequent polls
		// see no more children, matching real ECHILD behavior.
		return ReapNoChild, nil
	}
	if m.killedAt != nil {
		return ReapSignaled, nil
	}
	return ReapExited, nil
}
