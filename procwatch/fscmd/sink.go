// Package fscmd implements the filesystem rendezvous-file command
// surface: an operator (or another process) drops an empty file into a
// watched directory to request an action.
package fscmd

import (
	"os"
	"path/filepath"
	"strings"

	"git.sysgarden.dev/ops/procwatch/procwatch"
)

const (
	fileStop    = "wdtstop"
	fileRestart = "wdtrestart"
	fileReboot  = "wdtreboot"
)

// Sink checks a directory for rendezvous files. It is not authoritative
// about *when* to check — the tick loop calls its methods once per
// iteration — so a fsnotify.Watcher (see Watcher) is purely an optional
// latency improvement, never a substitute for the poll.
type Sink struct {
	dir string
}

// NewSink returns a Sink rooted at dir.
func NewSink(dir string) *Sink {
	return &Sink{dir: dir}
}

// PerAppCommand reports the state of a single app's three rendezvous
// files this tick: start and restart are one-shot (the
// caller removes them via RemoveStart/RemoveRestart only after acting),
// stop is a persistent latch the sink never removes on its own.
type PerAppCommand struct {
	Start, Stop, Restart bool
}

// Check reports which of appName's rendezvous files are present. It does
// not remove anything; the loop removes start/restart after successfully
// acting on them, and never removes stop.
func (s *Sink) Check(appName string) PerAppCommand {
	lower := strings.ToLower(appName)
	return PerAppCommand{
		Start:   s.exists("start" + lower),
		Stop:    s.exists("stop" + lower),
		Restart: s.exists("restart" + lower),
	}
}

// RemoveStart deletes appName's start file, once the loop has acted on
// it.
func (s *Sink) RemoveStart(appName string) {
	s.remove("start" + strings.ToLower(appName))
}

// RemoveRestart deletes appName's restart file, once the loop has acted
// on it.
func (s *Sink) RemoveRestart(appName string) {
	s.remove("restart" + strings.ToLower(appName))
}

// PollGlobal checks the three whole-process control files, removing each
// one it finds (these are removed unconditionally on detection, unlike
// the per-app stop latch) and returning the corresponding exit Commands.
func (s *Sink) PollGlobal() []procwatch.Command {
	var cmds []procwatch.Command

	if s.consume(fileStop) {
		cmds = append(cmds, procwatch.Command{Kind: procwatch.CmdExitNormal})
	}
	if s.consume(fileRestart) {
		cmds = append(cmds, procwatch.Command{Kind: procwatch.CmdExitRestart})
	}
	if s.consume(fileReboot) {
		cmds = append(cmds, procwatch.Command{Kind: procwatch.CmdExitReboot})
	}

	return cmds
}

func (s *Sink) exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

func (s *Sink) remove(name string) {
	os.Remove(filepath.Join(s.dir, name))
}

// consume reports whether name exists, removing it if so. A remove
// failure is treated as "not observed" so a stuck file (permissions, a
// race with another remover) is retried next tick rather than firing the
// same command forever.
func (s *Sink) consume(name string) bool {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return os.Remove(path) == nil
}
