package procwatch

// CommandKind tags a Command's variant. Commands are produced by the UDP
// endpoint (heartbeats and the reserved verbs) and by the filesystem
// sink's PollGlobal (the three exit kinds). OS signals and the reboot
// check are handled directly in Run and tick without a Command, per-app
// rendezvous files are reported as fscmd.PerAppCommand, and nothing
// produces the CmdFile* kinds.
type CommandKind int

const (
	CmdHeartbeat CommandKind = iota
	CmdStartApp              // reserved wire vocabulary; accepted, not acted on
	CmdStopApp                // reserved wire vocabulary; accepted, not acted on
	CmdRestartApp             // reserved wire vocabulary; accepted, not acted on
	CmdFileStart
	CmdFileStop
	CmdFileRestart
	CmdExitNormal
	CmdExitRestart
	CmdExitReboot
)

// Command is the flattened representation of every external event the
// loop can react to in a tick.
type Command struct {
	Kind CommandKind

	// Heartbeat
	PID int

	// StartApp / StopApp / RestartApp / FileStart / FileStop / FileRestart
	AppName string
}
