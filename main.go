package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"git.sysgarden.dev/ops/procwatch/procwatch"
	"git.sysgarden.dev/ops/procwatch/procwatch/journal"
	"github.com/pkg/errors"
)

var (
	configPath string
	testName   string
	showVer    bool
	showHelp   bool
)

func init() {
	flag.StringVar(&configPath, "i", "config.ini", "configuration file path")
	flag.StringVar(&testName, "t", "", "run a named self-test and exit (udp-echo, stats-roundtrip, reboot-policy)")
	flag.BoolVar(&showVer, "v", false, "print version and exit")
	flag.BoolVar(&showHelp, "h", false, "print this help and exit")
	flag.Usage = func() {
		f := func(f string, v ...interface{}) {
			fmt.Fprintf(flag.CommandLine.Output(), f, v...)
		}
		f("Usage:\n")
		f("  %s -i <config.ini> [-v] [-h] [-t <testname>]\n", filepath.Base(os.Args[0]))
		f("\n")
		f("Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
}

func main() {
	switch {
	case showHelp:
		flag.Usage()
		os.Exit(0)
	case showVer:
		fmt.Println(procwatch.Version)
		os.Exit(0)
	case testName != "":
		if err := procwatch.RunSelfTest(testName); err != nil {
			log.Println("self-test failed:", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	os.Exit(run())
}

// run loads the configuration, acquires the journal lock, builds the
// Supervisor, and drives it to completion, returning the process exit
// code: 0 normal, 1 fatal startup error, 2 restart-me (including a UDP
// bind failure), 3 reboot host.
func run() int {
	workDir := filepath.Dir(configPath)

	cfg, err := procwatch.LoadConfig(configPath)
	if err != nil {
		log.Println("failed to load configuration:", err)
		return procwatch.ExitFatal
	}

	j, err := journal.NewFileLockJournaler(filepath.Join(workDir, "procwatch.journal"))
	if err != nil {
		if errors.Is(err, journal.ErrLockedElsewhere) {
			log.Println("procwatch is already running against this working directory")
			return procwatch.ExitNormal
		}
		log.Println("failed to acquire journal lock:", err)
		return procwatch.ExitFatal
	}
	defer j.Close()

	journaler := journal.MultiWriter(j, journal.NewHumanWriter("procwatch", os.Stderr))

	supervisor, err := procwatch.NewSupervisor(cfg, workDir, workDir, procwatch.NewRealClock(), journaler)
	if err != nil {
		if errors.Is(err, procwatch.ErrUDPFatal) {
			log.Println("failed to bind UDP endpoint:", err)
			return procwatch.ExitRestart
		}
		log.Println("failed to start supervisor:", err)
		return procwatch.ExitFatal
	}

	journaler.Write(&procwatch.EventStartupSummary{
		UDPPort:      cfg.UDPPort,
		AppCount:     len(cfg.Apps),
		RebootPolicy: cfg.RebootPolicy.String(),
		Version:      procwatch.Version,
	})

	return supervisor.Run()
}
