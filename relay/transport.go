package relay

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Transport is the underlying per-relay client collaborator. It owns the
// wire protocol (framing, envelope encode/decode); the Connection only
// manages lifecycle state and dispatch on top of it.
//
// Connect must be callable again after a session ends. Close tears down
// the current session; every session teardown, local or remote, must
// surface exactly once on Disconnects.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Subscribe(filters nostr.Filters, id string) (TransportSubscription, error)
	Publish(ev nostr.Event) (PublishAck, error)

	// Notices delivers free-text operator notices from the relay.
	Notices() <-chan string

	// Disconnects delivers the terminal error of each session. The
	// channels persist across sessions.
	Disconnects() <-chan error
}

// TransportSubscription is a live subscription on the transport. Its
// channels are closed when the subscription or the session ends.
type TransportSubscription interface {
	Events() <-chan nostr.Event
	EndOfStoredEvents() <-chan struct{}
	Unsubscribe()
}

// PublishAck reports the relay's acknowledgment of a published event.
// Exactly one of the two channels yields a value per publish.
type PublishAck interface {
	OK() <-chan string
	Failed() <-chan error
}

// Subscription is the caller-owned handle describing a standing query.
// The Connection reads it and delivers into it but does not construct or
// destroy it.
type Subscription interface {
	// ID is the handle's unique identifier; it tags the transport
	// subscription.
	ID() string

	// Filters is the handle's filter specification.
	Filters() nostr.Filters

	// HandleEvent receives each matching event, tagged with the
	// originating connection.
	HandleEvent(ev *Event)

	// HandleEOSE is invoked when the relay signals that the stored-event
	// backlog has been replayed.
	HandleEOSE()

	// Done is closed when the handle shuts down independently of the
	// wrapped unsubscribe (e.g. closed by the caller's own logic); the
	// Connection then detaches it.
	Done() <-chan struct{}
}

// Event is a relay event tagged with the connection it arrived on.
type Event struct {
	nostr.Event
	Relay *Connection
}
