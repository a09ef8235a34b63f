package metricstream

// ConnState is the connection lifecycle state of the metrics stream.
type ConnState int32

const (
	// StateDisconnected means no session is open and none is wanted.
	StateDisconnected ConnState = iota
	// StateConnecting means the first dial of a session is in flight.
	StateConnecting
	// StateConnected means frames are being consumed.
	StateConnected
	// StateReconnecting means the connection was lost and a redial is
	// scheduled or in flight.
	StateReconnecting
	// StateFailed means the reconnect budget is exhausted; only a new
	// Connect leaves this state.
	StateFailed
)

var stateNames = map[ConnState]string{
	StateDisconnected: "DISCONNECTED",
	StateConnecting:   "CONNECTING",
	StateConnected:    "CONNECTED",
	StateReconnecting: "RECONNECTING",
	StateFailed:       "FAILED",
}

func (s ConnState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
