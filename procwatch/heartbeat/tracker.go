// Package heartbeat implements the pure timing logic of the heartbeat
// liveness protocol: elapsed-time bookkeeping and the timeout decision.
// It depends on nothing but plain monotonic-second values, so
// it has no knowledge of ManagedChild, Clock, or any other procwatch
// type — the supervisor loop extracts the handful of fields it needs and
// applies the pure results back.
package heartbeat

// RecordEvent computes the elapsed time since lastHeartbeatAt and reports
// whether this is the child's first heartbeat since its last spawn. The
// caller is responsible for then updating lastHeartbeatAt to now and, if
// first is true, marking the child as having received its first
// heartbeat.
func RecordEvent(now, lastHeartbeatAt int64, firstReceived bool) (elapsed int64, first bool) {
	return now - lastHeartbeatAt, !firstReceived
}

// Decision is the outcome of evaluating a child's heartbeat timeout at a
// given tick.
type Decision struct {
	// TimedOut is true iff the child should be restarted for a missed
	// heartbeat.
	TimedOut bool
	// ClockAnomaly is true iff now < lastHeartbeatAt was observed (the
	// monotonic clock appeared to run backward). When true, the caller
	// must reset the child's baseline to now and must not count this as
	// a timeout or any kind of event.
	ClockAnomaly bool
}

// Evaluate implements the heartbeat timeout decision. heartbeatInterval
// of 0 disables timeout monitoring entirely for this child.
func Evaluate(now, lastHeartbeatAt int64, started bool, heartbeatInterval, heartbeatDelay int, firstReceived bool) Decision {
	if !started || heartbeatInterval == 0 {
		return Decision{}
	}

	if now < lastHeartbeatAt {
		return Decision{ClockAnomaly: true}
	}

	threshold := int64(heartbeatInterval)
	if !firstReceived {
		threshold = int64(maxInt(heartbeatInterval, heartbeatDelay))
	}

	elapsed := now - lastHeartbeatAt
	return Decision{TimedOut: elapsed >= threshold}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
