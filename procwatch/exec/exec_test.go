package exec

import (
	"syscall"
	"testing"
	"time"
)

func TestSleepProcessGracefulExit(t *testing.T) {
	p := NewSleepProcess(1234, time.Hour, 0)

	if running, _ := p.IsRunning(); !running {
		t.Fatal("expected process to start running")
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}

	outcome, err := p.Reap()
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if outcome != ReapExited {
		t.Fatalf("expected ReapExited, got %v", outcome)
	}

	if running, _ := p.IsRunning(); running {
		t.Fatal("expected process to be reported dead after exit")
	}
}

func TestSleepProcessIgnoresTermUntilGrace(t *testing.T) {
	p := NewSleepProcess(1, time.Hour, 50*time.Millisecond)

	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}

	if outcome, _ := p.Reap(); outcome != ReapStillRunning {
		t.Fatalf("expected still running immediately after SIGTERM, got %v", outcome)
	}

	time.Sleep(60 * time.Millisecond)

	outcome, err := p.Reap()
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if outcome != ReapExited {
		t.Fatalf("expected ReapExited after grace period, got %v", outcome)
	}
}

func TestSleepProcessForceKill(t *testing.T) {
	p := NewSleepProcess(2, time.Hour, time.Hour)

	if err := p.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}

	outcome, err := p.Reap()
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if outcome != ReapSignaled {
		t.Fatalf("expected ReapSignaled, got %v", outcome)
	}
}

func TestSleepProcessReapIsOneShot(t *testing.T) {
	p := NewSleepProcess(3, time.Millisecond, 0)
	time.Sleep(5 * time.Millisecond)

	if outcome, _ := p.Reap(); outcome != ReapExited {
		t.Fatalf("expected ReapExited on first reap")
	}
	if outcome, _ := p.Reap(); outcome != ReapNoChild {
		t.Fatalf("expected ReapNoChild on second reap, got %v", outcome)
	}
}
