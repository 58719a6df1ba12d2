package relay

// Status is the lifecycle state of a relay connection.
type Status int

const (
	// StatusDisconnected is the initial state and the state after any
	// disconnect has been fully processed.
	StatusDisconnected Status = iota

	// StatusConnecting means a dial is in flight.
	StatusConnecting

	// StatusConnected means the transport is established.
	StatusConnected

	// StatusDisconnecting means Disconnect was requested and the close is
	// in flight; the transition to StatusDisconnected happens when the
	// transport's disconnect signal fires.
	StatusDisconnecting

	// StatusReconnecting means an unexpected disconnect was processed and
	// a reconnect attempt is pending.
	StatusReconnecting

	// StatusFlapping means the connection was classified as flapping
	// before the pending reconnect attempt.
	StatusFlapping
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFlapping:
		return "flapping"
	default:
		return "unknown"
	}
}
