package procwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"git.sysgarden.dev/ops/procwatch/procwatch/exec"
	"git.sysgarden.dev/ops/procwatch/procwatch/stats"
	"github.com/stretchr/testify/require"
)

// newTestSupervisor builds a Supervisor bound to an ephemeral UDP port and
// rooted at a fresh temp directory (returned alongside it so tests can
// drop rendezvous files directly), with its Driver's process factory
// replaced so no real process is ever forked.
func newTestSupervisor(t *testing.T, clock *fakeClock, journal Journaler, apps ...AppConfig) (*Supervisor, string) {
	t.Helper()

	workDir := t.TempDir()
	cfg := &Config{UDPPort: 0, Apps: apps}
	s, err := NewSupervisor(cfg, workDir, t.TempDir(), clock, journal)
	require.NoError(t, err)

	t.Cleanup(func() { s.UDP.Close() })
	return s, workDir
}

// fakeSpawner returns a Driver.startProcess replacement that hands out
// sleepProcess instances with ascending fake pids, so tests can control
// exactly how long each spawned child "runs" before "crashing".
func fakeSpawner(runFor, ignoreTerm time.Duration) func(argv []string) (exec.Process, error) {
	nextPID := 100
	return func(argv []string) (exec.Process, error) {
		nextPID++
		return exec.NewSleepProcess(nextPID, runFor, ignoreTerm), nil
	}
}

// touchRendezvous creates an empty rendezvous file directly under workDir,
// mirroring how an operator (or another process) would drop one, without
// going through the Supervisor at all.
func touchRendezvous(t *testing.T, workDir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, name), nil, 0640))
}

func TestTickSpawnsChildAfterStartDelay(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	j := &mockJournal{}
	s, _ := newTestSupervisor(t, clock, j, AppConfig{Name: "Bot", Command: "/bin/true", StartDelaySeconds: 5})
	s.Driver.startProcess = fakeSpawner(time.Hour, 0)

	s.processChild(s.Children[0], 0)
	require.False(t, s.Children[0].Started, "must not spawn before the start delay elapses")

	s.processChild(s.Children[0], 5)
	require.True(t, s.Children[0].Started, "must spawn once uptime reaches the start delay")
	require.Greater(t, s.Children[0].PID, 0)

	spawned := findEvent[*EventChildSpawned](t, j.Journals())
	require.Equal(t, "Bot", spawned.Child)
}

func TestTickRestartsCrashedChild(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	j := &mockJournal{}
	s, _ := newTestSupervisor(t, clock, j, AppConfig{Name: "Bot", Command: "/bin/true"})
	s.Driver.startProcess = fakeSpawner(10*time.Millisecond, 0)

	s.processChild(s.Children[0], 0)
	require.True(t, s.Children[0].Started)

	time.Sleep(20 * time.Millisecond) // let the fake process "exit" on its own
	s.processChild(s.Children[0], 1)

	crashed := findEvent[*EventChildCrashed](t, j.Journals())
	require.Equal(t, "Bot", crashed.Child)
	require.EqualValues(t, 1, s.stats["Bot"].CrashCount)
	require.True(t, s.Children[0].Started, "a restart should leave the child started again")
}

func TestTickHeartbeatTimeoutRestartsChild(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	j := &mockJournal{}
	s, _ := newTestSupervisor(t, clock, j, AppConfig{
		Name: "Bot", Command: "/bin/true",
		HeartbeatDelaySec: 1, HeartbeatInterval: 10,
	})
	s.Driver.startProcess = fakeSpawner(time.Hour, 0)

	s.processChild(s.Children[0], 0)
	s.Children[0].FirstHeartbeatReceived = true

	clock.Advance(11 * time.Second)
	s.processChild(s.Children[0], 11)

	timeout := findEvent[*EventHeartbeatTimeout](t, j.Journals())
	require.Equal(t, "Bot", timeout.Child)
	require.EqualValues(t, 1, s.stats["Bot"].HeartbeatResetCount)
}

func TestTickClockAnomalyResetsBaselineWithoutRestart(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	j := &mockJournal{}
	s, _ := newTestSupervisor(t, clock, j, AppConfig{
		Name: "Bot", Command: "/bin/true",
		HeartbeatDelaySec: 1, HeartbeatInterval: 10,
	})
	s.Driver.startProcess = fakeSpawner(time.Hour, 0)

	s.processChild(s.Children[0], 0)
	s.Children[0].LastHeartbeatAt = 1000 // pretend a heartbeat arrived far in the "future"

	s.processChild(s.Children[0], 1)

	require.Equal(t, clock.Monotonic(), s.Children[0].LastHeartbeatAt)
	for _, ev := range j.Journals() {
		require.NotIsType(t, &EventHeartbeatTimeout{}, ev, "a clock anomaly must never be reported as a timeout")
	}
}

func TestTickStopFileTerminatesChildWithoutRemovingLatch(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	j := &mockJournal{}
	s, workDir := newTestSupervisor(t, clock, j, AppConfig{Name: "Bot", Command: "/bin/true"})
	s.Driver.startProcess = fakeSpawner(time.Hour, 0)

	s.processChild(s.Children[0], 0)
	require.True(t, s.Children[0].Started)

	touchRendezvous(t, workDir, "stopbot")
	s.processChild(s.Children[0], 1)

	require.False(t, s.Children[0].Started, "stop file must terminate the child")
	require.True(t, s.FS.Check("Bot").Stop, "the stop latch must survive being acted on")
}

func TestTickRestartFileRemovedAfterActing(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	j := &mockJournal{}
	s, workDir := newTestSupervisor(t, clock, j, AppConfig{Name: "Bot", Command: "/bin/true"})
	s.Driver.startProcess = fakeSpawner(time.Hour, 0)

	s.processChild(s.Children[0], 0)
	firstPID := s.Children[0].PID

	touchRendezvous(t, workDir, "restartbot")
	s.processChild(s.Children[0], 1)

	require.True(t, s.Children[0].Started)
	require.NotEqual(t, firstPID, s.Children[0].PID, "restart must spawn a fresh process")
	require.False(t, s.FS.Check("Bot").Restart, "the one-shot restart file must be removed after acting")
}

func TestApplyHeartbeatUpdatesStatsForMatchingPID(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	j := &mockJournal{}
	s, _ := newTestSupervisor(t, clock, j, AppConfig{Name: "Bot", Command: "/bin/true"})
	s.Driver.startProcess = fakeSpawner(time.Hour, 0)
	s.processChild(s.Children[0], 0)

	pid := s.Children[0].PID
	clock.Advance(3 * time.Second)
	s.applyHeartbeat(pid)

	require.True(t, s.Children[0].FirstHeartbeatReceived)
	require.EqualValues(t, 1, s.stats["Bot"].StartCount)
	require.Equal(t, 3*time.Second, s.stats["Bot"].AvgFirstHeartbeatTime)
}

// TestTickPersistsStatsBeforeSameTickCrash exercises tick() end-to-end
// (rather than processChild directly) to check the ordering guarantee: a
// statistics-persistence boundary that falls in the same tick as a crash
// must be written to disk with the pre-crash counters, not the
// post-restart ones.
func TestTickPersistsStatsBeforeSameTickCrash(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	j := &mockJournal{}
	s, _ := newTestSupervisor(t, clock, j, AppConfig{Name: "Bot", Command: "/bin/true"})
	s.Driver.startProcess = fakeSpawner(5*time.Millisecond, 0)

	_, done := s.tick() // uptime 0: spawns the child, no persistence boundary yet
	require.False(t, done)
	require.True(t, s.Children[0].Started)

	time.Sleep(20 * time.Millisecond) // let the fake process "exit" on its own
	clock.Advance(StatsPersistInterval)

	_, done = s.tick() // uptime hits the 15-minute boundary in the same tick as the crash
	require.False(t, done)
	require.EqualValues(t, 1, s.stats["Bot"].CrashCount, "the crash must be processed by the time tick returns")

	onDisk, corrupt, err := stats.NewStore(s.statsDir).Load("Bot")
	require.NoError(t, err)
	require.False(t, corrupt)
	require.EqualValues(t, 0, onDisk.CrashCount,
		"persistence must have run before the crash was applied, so the saved record predates it")
}

// findEvent returns the single journaled event of type T, failing the test
// if none or more than one is found.
func findEvent[T Event](t *testing.T, events []Event) T {
	t.Helper()
	var found T
	var n int
	for _, ev := range events {
		if typed, ok := ev.(T); ok {
			found = typed
			n++
		}
	}
	require.Equal(t, 1, n, "expected exactly one event of this type")
	return found
}
