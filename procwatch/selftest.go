package procwatch

import (
	"fmt"
	"net"
	"os"
	"time"

	"git.sysgarden.dev/ops/procwatch/procwatch/stats"
	"git.sysgarden.dev/ops/procwatch/procwatch/udpcmd"
)

// RunSelfTest runs the named self-test ("-t NAME" on the command line)
// and returns nil on success. main translates a
// non-nil error into exit code 1 and a nil error into exit code 0.
func RunSelfTest(name string) error {
	switch name {
	case "udp-echo":
		return selfTestUDPEcho()
	case "stats-roundtrip":
		return selfTestStatsRoundtrip()
	case "reboot-policy":
		return selfTestRebootPolicy()
	default:
		return fmt.Errorf("unknown self-test %q (known: udp-echo, stats-roundtrip, reboot-policy)", name)
	}
}

// selfTestUDPEcho binds a real endpoint on an ephemeral port, sends it a
// heartbeat datagram from an independent socket, and confirms Poll
// decodes it correctly.
func selfTestUDPEcho() error {
	ep, err := udpcmd.Listen(0)
	if err != nil {
		return fmt.Errorf("bind endpoint: %w", err)
	}
	defer ep.Close()

	sender, err := net.DialUDP("udp", nil, ep.LocalAddr().(*net.UDPAddr))
	if err != nil {
		return fmt.Errorf("dial endpoint: %w", err)
	}
	defer sender.Close()

	if _, err := sender.Write([]byte("p4242")); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}

	cmd, unknown, err := ep.Poll(2 * time.Second)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if unknown != nil {
		return fmt.Errorf("datagram flagged unknown: %s", unknown.Printable)
	}
	if cmd.Kind != CmdHeartbeat || cmd.PID != 4242 {
		return fmt.Errorf("decoded %+v, want heartbeat pid 4242", cmd)
	}
	return nil
}

// selfTestStatsRoundtrip exercises a full Save/Load cycle through a real
// temp directory, then corrupts the raw file and confirms the corrupt
// flag is reported.
func selfTestStatsRoundtrip() error {
	dir, err := os.MkdirTemp("", "procwatch-selftest-stats")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	store := stats.NewStore(dir)

	rec := stats.NewRecord()
	rec.MarkStarted(time.Now())
	rec.UpdateFirstHeartbeatTime(3 * time.Second)
	rec.UpdateHeartbeatTime(5 * time.Second)

	if err := store.Save("selftest", rec); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	loaded, corrupt, err := store.Load("selftest")
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if corrupt {
		return fmt.Errorf("freshly saved record reported as corrupt")
	}
	if loaded.StartCount != 1 || loaded.HeartbeatCount != 1 {
		return fmt.Errorf("round-tripped record mismatched: %+v", loaded)
	}

	rawPath := dir + "/stats_selftest.raw"
	if err := os.WriteFile(rawPath, []byte("not a valid record"), 0640); err != nil {
		return fmt.Errorf("corrupt raw file: %w", err)
	}
	_, corrupt, err = store.Load("selftest")
	if err != nil {
		return fmt.Errorf("load corrupted: %w", err)
	}
	if !corrupt {
		return fmt.Errorf("corrupted record was not flagged corrupt")
	}
	return nil
}

// selfTestRebootPolicy parses each grammar form and checks ShouldReboot's
// interval arithmetic against a known elapsed duration.
func selfTestRebootPolicy() error {
	cases := []struct {
		value       string
		wantMinutes int64
	}{
		{"6h", 360},
		{"1d", 1440},
		{"1w", 10080},
	}

	for _, c := range cases {
		policy, err := ParseRebootPolicy(c.value)
		if err != nil {
			return fmt.Errorf("parse %q: %w", c.value, err)
		}
		if policy.IntervalMinutes != c.wantMinutes {
			return fmt.Errorf("%q parsed to %d minutes, want %d", c.value, policy.IntervalMinutes, c.wantMinutes)
		}
	}

	policy, _ := ParseRebootPolicy("6h")
	start := time.Unix(0, 0)
	before := start.Add(5*time.Hour + 59*time.Minute)
	after := start.Add(6*time.Hour + 1*time.Minute)

	if policy.ShouldReboot(start, before, time.Time{}) {
		return fmt.Errorf("fired before the interval elapsed")
	}
	if !policy.ShouldReboot(start, after, time.Time{}) {
		return fmt.Errorf("did not fire after the interval elapsed")
	}

	if _, err := ParseRebootPolicy("999999999h"); err == nil {
		return fmt.Errorf("overflow-sized interval should have been rejected")
	}

	return nil
}
