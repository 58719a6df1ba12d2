package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrkit/relaymgr/relay"
)

// Client is a reusable WebSocket transport for one relay endpoint. Connect
// may be called again after a session ends; the Notices and Disconnects
// channels persist across sessions.
type Client struct {
	url    string
	cfg    Config
	logger *slog.Logger

	notices     chan string
	disconnects chan error

	mu   sync.Mutex
	sess *session
}

// session holds the state of one established connection. Subscriptions and
// pending publish acknowledgments die with the session.
type session struct {
	conn     *websocket.Conn
	done     chan struct{}
	downOnce sync.Once

	writeMu sync.Mutex

	mu         sync.Mutex
	subs       map[string]*Subscription
	pending    map[string]*Ack
	lastPingAt time.Time
}

// New creates a transport client for the relay at url. A nil logger falls
// back to slog.Default.
func New(url string, cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		url:         url,
		cfg:         cfg,
		logger:      logger.With("relay", url),
		notices:     make(chan string, cfg.NoticeBuffer),
		disconnects: make(chan error, 4),
	}
}

// Connect dials the relay and starts the read and heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	s := &session{
		conn:       conn,
		done:       make(chan struct{}),
		subs:       make(map[string]*Subscription),
		pending:    make(map[string]*Ack),
		lastPingAt: time.Now(),
	}

	// Relay-initiated pings get a pong and count as liveness.
	conn.SetPingHandler(func(data string) error {
		s.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyConnected
	}
	c.sess = s
	c.mu.Unlock()

	go c.readLoop(s)
	go c.heartbeatLoop(s)

	c.logger.Debug("websocket connected")
	return nil
}

// Close gracefully closes the current session. The teardown still emits on
// Disconnects: consumers see every session end through one signal.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	if s == nil {
		return ErrNotConnected
	}

	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.teardown(s, ErrConnectionClosed)

	return nil
}

// Notices returns the operator notice channel.
func (c *Client) Notices() <-chan string {
	return c.notices
}

// Disconnects returns the session teardown channel.
func (c *Client) Disconnects() <-chan error {
	return c.disconnects
}

// IsConnected reports whether a session is currently established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Subscribe sends a REQ for the filters under the given id and returns the
// live subscription. An empty id gets a generated one.
func (c *Client) Subscribe(filters nostr.Filters, id string) (relay.TransportSubscription, error) {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	if s == nil {
		return nil, ErrNotConnected
	}
	if id == "" {
		id = uuid.NewString()
	}

	sub := &Subscription{
		id:     id,
		client: c,
		sess:   s,
		events: make(chan nostr.Event, c.cfg.EventBuffer),
		eose:   make(chan struct{}, 1),
	}

	s.mu.Lock()
	if _, dup := s.subs[id]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubID, id)
	}
	s.subs[id] = sub
	s.mu.Unlock()

	env := nostr.ReqEnvelope{SubscriptionID: id, Filters: filters}
	if err := c.send(s, &env); err != nil {
		s.mu.Lock()
		delete(s.subs, id)
		sub.closeLocked()
		s.mu.Unlock()
		return nil, err
	}

	return sub, nil
}

// Publish sends the event and registers a pending acknowledgment keyed by
// the event id; the relay's OK envelope resolves it.
func (c *Client) Publish(ev nostr.Event) (relay.PublishAck, error) {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	if s == nil {
		return nil, ErrNotConnected
	}

	ack := &Ack{
		ok:     make(chan string, 1),
		failed: make(chan error, 1),
	}

	s.mu.Lock()
	if _, dup := s.pending[ev.ID]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePublish, ev.ID)
	}
	s.pending[ev.ID] = ack
	s.mu.Unlock()

	env := nostr.EventEnvelope{Event: ev}
	if err := c.send(s, &env); err != nil {
		s.mu.Lock()
		delete(s.pending, ev.ID)
		s.mu.Unlock()
		return nil, err
	}

	return ack, nil
}

// send marshals an envelope and writes it with the configured deadline.
// Writes are serialized per session.
func (c *Client) send(s *session, env nostr.Envelope) error {
	data, err := env.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Label(), err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames until the session dies, dispatching each envelope.
func (c *Client) readLoop(s *session) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			c.teardown(s, err)
			return
		}
		c.dispatch(s, data)
	}
}

// dispatch routes one incoming envelope to its subscription, pending
// publish, or the notice channel.
func (c *Client) dispatch(s *session, data []byte) {
	envelope := nostr.ParseMessage(data)
	if envelope == nil {
		c.logger.Debug("unparseable message", "data", string(data))
		return
	}

	switch env := envelope.(type) {
	case *nostr.EventEnvelope:
		id := ""
		if env.SubscriptionID != nil {
			id = *env.SubscriptionID
		}
		s.deliverEvent(c.logger, id, env.Event)

	case *nostr.EOSEEnvelope:
		s.signalEOSE(string(*env))

	case *nostr.NoticeEnvelope:
		select {
		case c.notices <- string(*env):
		default:
			c.logger.Warn("notice buffer full, dropping", "notice", string(*env))
		}

	case *nostr.OKEnvelope:
		s.mu.Lock()
		ack := s.pending[env.EventID]
		delete(s.pending, env.EventID)
		s.mu.Unlock()

		if ack == nil {
			c.logger.Debug("ok for unknown event", "event_id", env.EventID)
			return
		}
		if env.OK {
			ack.ok <- env.Reason
		} else {
			ack.failed <- fmt.Errorf("relay rejected event: %s", env.Reason)
		}

	case *nostr.ClosedEnvelope:
		c.logger.Warn("relay closed subscription",
			"id", env.SubscriptionID,
			"reason", env.Reason,
		)
		s.mu.Lock()
		if sub, ok := s.subs[env.SubscriptionID]; ok {
			delete(s.subs, env.SubscriptionID)
			sub.closeLocked()
		}
		s.mu.Unlock()

	default:
		c.logger.Debug("ignoring envelope", "label", envelope.Label())
	}
}

// heartbeatLoop sends keepalive pings and tears the session down when no
// ping or pong has been seen within PingTimeout.
func (c *Client) heartbeatLoop(s *session) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			s.mu.Lock()
			lastPing := s.lastPingAt
			s.mu.Unlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale", "last_ping", lastPing)
				c.teardown(s, ErrStaleConnection)
				return
			}
		}
	}
}

// teardown ends a session exactly once: closes the socket, closes every
// subscription's channels, fails pending publishes, and emits the reason
// on Disconnects.
func (c *Client) teardown(s *session, reason error) {
	s.downOnce.Do(func() {
		close(s.done)
		s.conn.Close()

		s.mu.Lock()
		for id, sub := range s.subs {
			sub.closeLocked()
			delete(s.subs, id)
		}
		for id, ack := range s.pending {
			ack.failed <- fmt.Errorf("connection closed before ack: %w", reason)
			delete(s.pending, id)
		}
		s.mu.Unlock()

		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
		}
		c.mu.Unlock()

		c.logger.Debug("session ended", "reason", reason)
		select {
		case c.disconnects <- reason:
		default:
			c.logger.Warn("disconnect buffer full, dropping signal")
		}
	})
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastPingAt = time.Now()
	s.mu.Unlock()
}

// deliverEvent hands an event to its subscription without blocking the
// read loop; a full subscription buffer drops the event with a warning.
func (s *session) deliverEvent(logger *slog.Logger, id string, ev nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok || sub.closed {
		logger.Debug("event for unknown subscription", "id", id)
		return
	}

	select {
	case sub.events <- ev:
	default:
		logger.Warn("event buffer full, dropping event", "id", id, "event_id", ev.ID)
	}
}

// signalEOSE marks a subscription's backlog replay as complete, at most
// once per subscription.
func (s *session) signalEOSE(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok || sub.closed || sub.eoseSent {
		return
	}
	sub.eoseSent = true
	sub.eose <- struct{}{}
}

// Subscription is a live subscription on one session.
type Subscription struct {
	id     string
	client *Client
	sess   *session

	events chan nostr.Event
	eose   chan struct{}

	// guarded by sess.mu
	closed   bool
	eoseSent bool
}

// ID returns the subscription identifier used on the wire.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the event channel; it closes when the subscription or
// its session ends.
func (s *Subscription) Events() <-chan nostr.Event {
	return s.events
}

// EndOfStoredEvents signals that the relay finished replaying stored
// events; the channel closes with the subscription.
func (s *Subscription) EndOfStoredEvents() <-chan struct{} {
	return s.eose
}

// Unsubscribe sends CLOSE to the relay and closes the channels. Safe to
// call more than once and safe to race with session teardown.
func (s *Subscription) Unsubscribe() {
	s.sess.mu.Lock()
	already := s.closed
	delete(s.sess.subs, s.id)
	s.closeLocked()
	s.sess.mu.Unlock()

	if already {
		return
	}

	// Best effort: the session may already be gone.
	env := nostr.CloseEnvelope(s.id)
	if err := s.client.send(s.sess, &env); err != nil {
		s.client.logger.Debug("close envelope not sent", "id", s.id, "error", err)
	}
}

// closeLocked closes the subscription's channels. Callers hold sess.mu.
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
	close(s.eose)
}

// Ack is the pending acknowledgment of one published event. Exactly one
// channel yields a value: OK on acceptance, Failed on rejection or when
// the session dies first.
type Ack struct {
	ok     chan string
	failed chan error
}

// OK yields the relay's acceptance detail.
func (a *Ack) OK() <-chan string {
	return a.ok
}

// Failed yields the rejection or transport failure.
func (a *Ack) Failed() <-chan error {
	return a.failed
}
