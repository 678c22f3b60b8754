package procwatch

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.sysgarden.dev/ops/procwatch/procwatch/exec"
	"git.sysgarden.dev/ops/procwatch/procwatch/fscmd"
	"git.sysgarden.dev/ops/procwatch/procwatch/heartbeat"
	"git.sysgarden.dev/ops/procwatch/procwatch/stats"
	"git.sysgarden.dev/ops/procwatch/procwatch/udpcmd"
)

// Supervisor owns the full set of managed children and drives the single
// tick loop. One Supervisor corresponds to one running process; it is
// not safe for concurrent use from outside Run.
type Supervisor struct {
	Clock   Clock
	Driver  *Driver
	Journal Journaler

	UDP *udpcmd.Endpoint
	FS  *fscmd.Sink

	RebootPolicy RebootPolicy
	statsDir     string

	Children []*ManagedChild

	stats           map[string]*stats.Record
	resourceSamples map[string]resourceSample
	startMono       int64
	lastDailyReboot time.Time
	exitCode        int
}

// resourceSample is the previous resource reading for one child, kept
// only in memory so the next sample can derive a CPU% from the ticks
// delta. It is invalidated (via the pid check) whenever the child has
// been respawned since the last sample.
type resourceSample struct {
	pid   int
	ticks int64
	wall  time.Time
}

// NewSupervisor builds a Supervisor from a loaded Config. statsDir is
// where per-child statistics files live; workDir is where rendezvous
// files and the UDP port are rooted.
func NewSupervisor(cfg *Config, workDir, statsDir string, clock Clock, journal Journaler) (*Supervisor, error) {
	udpEndpoint, err := udpcmd.Listen(cfg.UDPPort)
	if err != nil {
		return nil, err
	}

	children := make([]*ManagedChild, 0, len(cfg.Apps))
	for _, app := range cfg.Apps {
		children = append(children, app.NewManagedChild())
	}

	s := &Supervisor{
		Clock:           clock,
		Driver:          NewDriver(),
		Journal:         journal,
		UDP:             udpEndpoint,
		FS:              fscmd.NewSink(workDir),
		RebootPolicy:    cfg.RebootPolicy,
		statsDir:        statsDir,
		Children:        children,
		stats:           make(map[string]*stats.Record),
		resourceSamples: make(map[string]resourceSample),
		startMono:       clock.Monotonic(),
	}

	store := stats.NewStore(statsDir)
	for _, c := range children {
		rec, corrupt, err := store.Load(c.Name)
		if err != nil {
			s.warn("stats", err)
		}
		if corrupt {
			journal.Write(&EventStatsCorrupt{Child: c.Name})
		}
		s.stats[c.Name] = rec
	}

	return s, nil
}

func (s *Supervisor) warn(component string, err error) {
	s.Journal.Write(&EventWarning{Component: component, Error: err.Error()})
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	s.Journal.Write(&EventWarning{Component: "loop", Error: fmt.Sprintf(format, args...)})
}

// Run executes the tick loop until a command requests exit or sig
// receives a terminal signal, returning the process exit code.
func (s *Supervisor) Run() int {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	usr1Count := 0

	for {
		select {
		case sig := <-sigCh:
			s.Journal.Write(&EventSignalReceived{Signal: sig.String()})
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				return s.shutdown(ExitRestart)
			case syscall.SIGQUIT:
				return s.shutdown(ExitReboot)
			case syscall.SIGUSR1:
				usr1Count++
				// USR1s arriving while cleanup runs count toward the stuck limit.
				go func() {
					for usr1Count < usr1StuckLimit {
						if <-sigCh == syscall.SIGUSR1 {
							usr1Count++
						}
					}
					os.Exit(ExitNormal)
				}()
				return s.shutdown(ExitNormal)
			}
		default:
		}

		if code, done := s.tick(); done {
			return code
		}
	}
}

// tick runs one iteration of the loop: a bounded UDP poll, per-child
// processing in declaration order, global file commands, and the
// periodic reboot check.
func (s *Supervisor) tick() (exitCode int, done bool) {
	cmd, unknown, err := s.UDP.Poll(TickInterval)
	if err != nil {
		s.warn("udp", err)
		return s.shutdown(ExitRestart), true
	}
	if unknown != nil {
		s.logf("unknown datagram: %s | %s", unknown.Printable, unknown.Hex)
	}
	if cmd.Kind == CmdHeartbeat {
		s.applyHeartbeat(cmd.PID)
	}

	uptime := s.Clock.Monotonic() - s.startMono

	// Resource sampling and statistics persistence run before any
	// per-child processing this tick, so a crash/restart/stop decided
	// below never races ahead of a boundary that falls in the same tick.
	if uptime > 0 && uptime%int64(ResourceSampleInterval.Seconds()) == 0 {
		s.sampleResources()
	}
	if uptime > 0 && uptime%int64(StatsPersistInterval.Seconds()) == 0 {
		s.persistStats()
	}

	for _, child := range s.Children {
		s.processChild(child, uptime)
	}

	for _, cmd := range s.FS.PollGlobal() {
		switch cmd.Kind {
		case CmdExitNormal:
			s.Journal.Write(&EventFileCommandObserved{File: "wdtstop", Action: "exit_normal"})
			return s.shutdown(ExitNormal), true
		case CmdExitRestart:
			s.Journal.Write(&EventFileCommandObserved{File: "wdtrestart", Action: "exit_restart"})
			return s.shutdown(ExitRestart), true
		case CmdExitReboot:
			s.Journal.Write(&EventFileCommandObserved{File: "wdtreboot", Action: "exit_reboot"})
			return s.shutdown(ExitReboot), true
		}
	}

	if uptime > 0 && uptime%int64(ResourceSampleInterval.Seconds()) == 0 {
		wallNow := s.Clock.WallNow()
		if s.RebootPolicy.ShouldReboot(wallNow.Add(-time.Duration(uptime)*time.Second), wallNow, s.lastDailyReboot) {
			if s.RebootPolicy.Mode == RebootDailyTime {
				s.lastDailyReboot = s.Clock.WallNow()
			}
			s.Journal.Write(&EventRebootFired{Reason: s.RebootPolicy.String()})
			return s.shutdown(ExitReboot), true
		}
	}

	return 0, false
}

func (s *Supervisor) applyHeartbeat(pid int) {
	for _, c := range s.Children {
		if c.PID != pid || !c.Started {
			continue
		}

		now := s.Clock.Monotonic()
		elapsed, first := heartbeat.RecordEvent(now, c.LastHeartbeatAt, c.FirstHeartbeatReceived)
		rec := s.stats[c.Name]

		if first {
			rec.UpdateFirstHeartbeatTime(time.Duration(elapsed) * time.Second)
			c.FirstHeartbeatReceived = true
		} else if elapsed >= 0 {
			rec.UpdateHeartbeatTime(time.Duration(elapsed) * time.Second)
		}

		c.LastHeartbeatAt = now
		return
	}
}

func (s *Supervisor) processChild(c *ManagedChild, uptime int64) {
	files := s.FS.Check(c.Name)

	if !c.Started {
		due := uptime >= int64(c.StartDelaySeconds)
		if !files.Stop && (files.Start || due) {
			if err := s.Driver.Spawn(s.Clock, c); err != nil {
				s.Journal.Write(&EventChildSpawnFailed{Child: c.Name, Reason: err.Error()})
				return
			}
			s.stats[c.Name].MarkStarted(s.Clock.WallNow())
			s.Journal.Write(&EventChildSpawned{Child: c.Name, PID: c.PID})
			s.FS.RemoveStart(c.Name)
			s.FS.RemoveRestart(c.Name)
		}
		return
	}

	now := s.Clock.Monotonic()
	decision := heartbeat.Evaluate(
		now, c.LastHeartbeatAt, c.Started,
		c.HeartbeatIntervalSec, c.HeartbeatDelaySec, c.FirstHeartbeatReceived,
	)

	switch {
	case !s.Driver.IsRunning(c, s.logf):
		s.Journal.Write(&EventChildCrashed{Child: c.Name, PID: c.PID})
		s.stats[c.Name].MarkCrashed(s.Clock.WallNow())
		if err := s.Driver.Restart(s.Clock, c, s.logf); err != nil {
			s.warn("driver", err)
		} else {
			s.Journal.Write(&EventChildSpawned{Child: c.Name, PID: c.PID})
		}

	case decision.ClockAnomaly:
		c.LastHeartbeatAt = now

	case decision.TimedOut:
		threshold := int64(c.HeartbeatIntervalSec)
		if !c.FirstHeartbeatReceived && c.HeartbeatDelaySec > c.HeartbeatIntervalSec {
			threshold = int64(c.HeartbeatDelaySec)
		}
		s.Journal.Write(&EventHeartbeatTimeout{
			Child:        c.Name,
			ElapsedSec:   now - c.LastHeartbeatAt,
			ThresholdSec: threshold,
		})
		s.stats[c.Name].MarkHeartbeatReset(s.Clock.WallNow())
		if err := s.Driver.Restart(s.Clock, c, s.logf); err != nil {
			s.warn("driver", err)
		} else {
			s.Journal.Write(&EventChildSpawned{Child: c.Name, PID: c.PID})
		}

	case files.Stop:
		if err := s.Driver.Terminate(c); err != nil {
			s.Journal.Write(&EventTerminateUnconfirmed{Child: c.Name, PID: c.PID})
		}
		s.Journal.Write(&EventFileCommandObserved{File: "stop" + c.LowerName(), Action: "terminate"})

	case files.Restart:
		if err := s.Driver.Restart(s.Clock, c, s.logf); err != nil {
			s.warn("driver", err)
		} else {
			s.Journal.Write(&EventChildSpawned{Child: c.Name, PID: c.PID})
		}
		s.Journal.Write(&EventFileCommandObserved{File: "restart" + c.LowerName(), Action: "restart"})
		s.FS.RemoveRestart(c.Name)
	}
}

// sampleResources reads CPU/RSS for every running child and folds the
// sample into its statistics record. CPU% is derived from the delta in
// utime+stime ticks since the previous sample; a child's first sample
// after a (re)spawn has no prior ticks to diff against, so it reports 0%
// and seeds the baseline for the next one.
func (s *Supervisor) sampleResources() {
	now := s.Clock.WallNow()

	for _, c := range s.Children {
		if !c.Started || c.PID <= 0 {
			continue
		}

		usage, err := exec.ReadResourceUsage(c.PID)
		if err != nil {
			s.warn("resource_sample", err)
			continue
		}

		ticks := usage.UtimeTicks + usage.StimeTicks

		var cpuPercent float64
		if prev, ok := s.resourceSamples[c.Name]; ok && prev.pid == c.PID {
			if elapsed := now.Sub(prev.wall).Seconds(); elapsed > 0 {
				cpuSeconds := float64(ticks-prev.ticks) / float64(exec.ClockTicksPerSec)
				cpuPercent = (cpuSeconds / elapsed) * 100
			}
		}
		s.resourceSamples[c.Name] = resourceSample{pid: c.PID, ticks: ticks, wall: now}

		s.stats[c.Name].UpdateResourceSample(cpuPercent, usage.RSSKiB)
	}
}

func (s *Supervisor) persistStats() {
	store := stats.NewStore(s.statsDir)
	for name, rec := range s.stats {
		if err := store.Save(name, rec); err != nil {
			s.warn("stats", err)
		}
	}
}

func (s *Supervisor) shutdown(code int) int {
	store := stats.NewStore(s.statsDir)
	for _, c := range s.Children {
		if err := store.Save(c.Name, s.stats[c.Name]); err != nil {
			s.warn("stats", err)
		}
		if c.Started {
			if err := s.Driver.Terminate(c); err != nil {
				s.Journal.Write(&EventTerminateUnconfirmed{Child: c.Name, PID: c.PID})
			}
		}
	}
	s.UDP.Close()
	return code
}
