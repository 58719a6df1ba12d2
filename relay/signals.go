package relay

// SignalType identifies a lifecycle signal.
type SignalType int

const (
	// SignalConnect fires after a successful connect.
	SignalConnect SignalType = iota

	// SignalDisconnect fires when a session teardown has been processed.
	SignalDisconnect

	// SignalNotice carries a free-text operator notice from the relay.
	SignalNotice

	// SignalFlapping fires when the connection is classified as flapping;
	// it carries a stats snapshot so external policy can deprioritize the
	// relay. Flapping is a health classification, not an error: the
	// connection keeps retrying.
	SignalFlapping
)

func (t SignalType) String() string {
	switch t {
	case SignalConnect:
		return "connect"
	case SignalDisconnect:
		return "disconnect"
	case SignalNotice:
		return "notice"
	case SignalFlapping:
		return "flapping"
	default:
		return "unknown"
	}
}

// Signal is a typed lifecycle event emitted by a Connection.
type Signal struct {
	Type SignalType
	Conn *Connection

	// Err is the session's terminal error (SignalDisconnect only).
	Err error

	// Notice is the raw notice text (SignalNotice only).
	Notice string

	// Stats is a snapshot taken at classification time (SignalFlapping
	// only).
	Stats StatsSnapshot
}
