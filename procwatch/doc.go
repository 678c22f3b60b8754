// Package procwatch is the core of the process watchdog: a single-threaded
// supervisor loop that spawns a fixed set of child applications, restarts
// any child that crashes or stops sending heartbeats, and persists
// per-child operational statistics across its own restarts.
//
// Mechanism of Operation
//
// Liveness
//
// Each managed child is expected to send a UDP datagram of the form
// "p<pid>" at least once every heartbeat_interval seconds, after an
// initial heartbeat_delay grace period following spawn. The supervisor
// tracks the last time it saw such a datagram per child and restarts any
// child whose datagram has gone quiet for too long. Process death is
// detected independently with a zero-signal probe (kill(pid, 0)); the two
// liveness signals (heartbeat timeout, process death) are handled the
// same way: stats are updated, then the child is restarted.
//
// Command Sources
//
// Four independent sources feed commands into the loop on each tick: the
// UDP socket, presence-based rendezvous files in the working directory,
// OS signals (INT/TERM/QUIT/USR1), and a periodic reboot policy evaluated
// once a minute of uptime. UDP datagrams and the whole-process rendezvous
// files arrive as Command values; signals are handled in Run's select,
// per-app files in processChild, and the reboot policy at the end of each
// tick.
//
// Statistics
//
// Every child has a fixed-layout binary statistics record (stats/Record)
// persisted to disk every 15 minutes of uptime and on shutdown. The
// counters in that record are monotone across supervisor restarts, except
// for the heartbeat count fields, which reset on every (re)start.
package procwatch
