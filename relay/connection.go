package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nbd-wtf/go-nostr"
)

// noticeLimitStems mark operator notices that signal a connection limit
// ("too many connections", "Maximum concurrent ..."). Stems rather than
// full words so both capitalizations match; best-effort heuristic against
// uncontrolled free text.
var noticeLimitStems = []string{"oo many", "aximum"}

// Connection manages one logical connection to a relay: lifecycle state,
// reconnection policy, and subscription/publish multiplexing over the
// transport.
type Connection struct {
	url    string
	tr     Transport
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock

	mu             sync.Mutex
	status         Status
	connectedSince time.Time
	closeRequested bool
	stats          ConnectionStats
	subs           map[string]*ActiveSubscription
	scores         map[string]float64
	reconnectTimer *clock.Timer

	signals chan Signal
}

// New creates a Connection for the relay at url over the given transport.
// A nil logger falls back to slog.Default.
func New(url string, tr Transport, cfg Config, logger *slog.Logger) *Connection {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Connection{
		url:     url,
		tr:      tr,
		cfg:     cfg,
		logger:  logger.With("relay", url),
		clock:   clock.New(),
		status:  StatusDisconnected,
		subs:    make(map[string]*ActiveSubscription),
		scores:  make(map[string]float64),
		signals: make(chan Signal, cfg.SignalBuffer),
	}
}

// URL returns the relay endpoint. Immutable.
func (c *Connection) URL() string {
	return c.url
}

// Status returns the current lifecycle state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ConnectedSince returns the start of the current connection, or the zero
// time when not connected.
func (c *Connection) ConnectedSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedSince
}

// Stats returns a read-only snapshot of the connection statistics.
func (c *Connection) Stats() StatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Snapshot()
}

// Signals returns the lifecycle signal stream. Emission never blocks: when
// the buffer is full the signal is dropped with a warning.
func (c *Connection) Signals() <-chan Signal {
	return c.signals
}

// SubscriptionCount returns the number of attached subscription handles.
func (c *Connection) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// HasSubscription reports whether a handle with the given id is attached.
func (c *Connection) HasSubscription(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[id]
	return ok
}

// Scores returns a copy of the per-pubkey quality scores. The scores are
// an exposure point for external relay-selection logic; the connection
// never mutates them itself.
func (c *Connection) Scores() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.scores))
	for pk, s := range c.scores {
		out[pk] = s
	}
	return out
}

// SetScore records a relative quality score for a pubkey on this relay.
func (c *Connection) SetScore(pubkey string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[pubkey] = score
}

// Connect dials the relay. Valid only from the disconnected, reconnecting,
// or flapping states. A dial failure reverts to disconnected and is
// returned to the caller; the reconnection path never retries a failed
// explicit connect.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case StatusDisconnected, StatusReconnecting, StatusFlapping:
	default:
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidState, status)
	}
	c.cancelReconnectLocked()
	c.stats.RecordAttempt()
	c.status = StatusConnecting
	c.mu.Unlock()

	if err := c.tr.Connect(ctx); err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		return fmt.Errorf("connect %s: %w", c.url, err)
	}

	now := c.clock.Now()
	c.mu.Lock()
	c.stats.RecordConnected(now)
	c.connectedSince = now
	c.closeRequested = false
	c.status = StatusConnected
	c.mu.Unlock()

	c.logger.Info("relay connected")
	c.emit(Signal{Type: SignalConnect, Conn: c})

	go c.watchSession()
	c.resubscribeAll()

	return nil
}

// Disconnect requests a close. The transition to StatusDisconnected and
// the stats update happen when the transport's disconnect signal fires, so
// the completed connection's duration is recorded exactly once. From a
// pending-reconnect state, Disconnect just cancels the pending attempt.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	switch c.status {
	case StatusConnecting, StatusConnected:
		c.closeRequested = true
		c.status = StatusDisconnecting
		c.mu.Unlock()
		return c.tr.Close()

	case StatusReconnecting, StatusFlapping:
		c.cancelReconnectLocked()
		c.status = StatusDisconnected
		c.mu.Unlock()
		return nil

	default:
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConnected, status)
	}
}

// watchSession consumes the transport's signal channels for one session.
// It exits when the session's disconnect signal has been processed.
func (c *Connection) watchSession() {
	for {
		select {
		case err, ok := <-c.tr.Disconnects():
			if !ok {
				return
			}
			c.handleDisconnect(err)
			return

		case text, ok := <-c.tr.Notices():
			if !ok {
				return
			}
			c.handleNotice(text)
		}
	}
}

// handleDisconnect processes a session teardown: record the completed
// duration, emit the disconnect signal, and trigger reconnection handling
// unless the close was requested via Disconnect.
func (c *Connection) handleDisconnect(reason error) {
	now := c.clock.Now()

	c.mu.Lock()
	expected := c.closeRequested
	c.closeRequested = false
	c.stats.RecordDisconnected(now)
	c.connectedSince = time.Time{}
	c.status = StatusDisconnected
	c.mu.Unlock()

	c.logger.Info("relay disconnected", "expected", expected, "reason", reason)
	c.emit(Signal{Type: SignalDisconnect, Conn: c, Err: reason})

	if !expected {
		c.handleReconnection()
	}
}

// handleReconnection applies the flapping heuristic and the two-tier
// backoff after an unexpected disconnect: a connection that died within
// ShortLivedThreshold cools down for ReconnectCooldown, anything else
// reconnects immediately.
func (c *Connection) handleReconnection() {
	snap := c.Stats()

	next := StatusReconnecting
	if c.isFlapping(snap) {
		c.logger.Warn("relay is flapping", "samples", len(snap.Durations))
		c.emit(Signal{Type: SignalFlapping, Conn: c, Stats: snap})
		next = StatusFlapping
	}
	c.mu.Lock()
	c.status = next
	c.mu.Unlock()

	if last, ok := snap.LastDuration(); ok && last < c.cfg.ShortLivedThreshold {
		c.logger.Info("last connection was short-lived, cooling down",
			"duration", last,
			"delay", c.cfg.ReconnectCooldown,
		)
		c.scheduleReconnect(c.cfg.ReconnectCooldown)
		return
	}

	c.reconnectNow()
}

// isFlapping reports whether the recorded lifetimes form a tight
// low-variance cluster. Fewer than FlappingMinSamples samples are never
// flapping, which avoids false positives on a fresh connection.
func (c *Connection) isFlapping(snap StatsSnapshot) bool {
	if len(snap.Durations) < c.cfg.FlappingMinSamples {
		return false
	}

	ms := make([]float64, len(snap.Durations))
	var sum float64
	for i, d := range snap.Durations {
		ms[i] = float64(d) / float64(time.Millisecond)
		sum += ms[i]
	}
	mean := sum / float64(len(ms))

	var variance float64
	for _, v := range ms {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(ms))

	threshold := float64(c.cfg.FlappingMaxStdDev) / float64(time.Millisecond)
	return math.Sqrt(variance) < threshold
}

// scheduleReconnect arms the single pending-timer slot, replacing any
// previously scheduled attempt so duplicate in-flight connects are not
// possible. The callback re-checks eligibility before dialing.
func (c *Connection) scheduleReconnect(delay time.Duration) {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		eligible := c.status == StatusDisconnected ||
			c.status == StatusReconnecting ||
			c.status == StatusFlapping
		c.mu.Unlock()

		if !eligible {
			return
		}
		c.reconnectNow()
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", "delay", delay)
}

func (c *Connection) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// reconnectNow issues a reconnect attempt. A failure is logged and left
// for the next unexpected-disconnect cycle; Connect itself never retries.
func (c *Connection) reconnectNow() {
	if err := c.Connect(context.Background()); err != nil {
		c.logger.Warn("reconnect attempt failed", "error", err)
	}
}

// handleNotice forwards every notice to observers and reacts defensively
// to connection-limiting notices: disconnect, then reconnect after
// NoticeReconnectDelay.
func (c *Connection) handleNotice(text string) {
	c.logger.Info("relay notice", "text", text)
	c.emit(Signal{Type: SignalNotice, Conn: c, Notice: text})

	for _, stem := range noticeLimitStems {
		if !strings.Contains(text, stem) {
			continue
		}
		c.logger.Warn("relay signaled a connection limit, backing off", "notice", text)
		if err := c.Disconnect(); err != nil {
			c.logger.Warn("disconnect after limit notice failed", "error", err)
		}
		c.scheduleReconnect(c.cfg.NoticeReconnectDelay)
		return
	}
}

// Subscribe forwards the handle's filters to the transport, tagged with
// the handle's id, and bridges events and EOSE back to it. The handle is
// attached before the transport call and rolled back on failure. The
// returned ActiveSubscription's Unsubscribe and the handle's own closure
// both detach it; both paths are idempotent in either order.
func (c *Connection) Subscribe(sub Subscription) (*ActiveSubscription, error) {
	id := sub.ID()
	if id == "" {
		return nil, ErrMissingSubscriptionID
	}

	active := &ActiveSubscription{conn: c, handle: sub, id: id}

	c.mu.Lock()
	if _, exists := c.subs[id]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubscription, id)
	}
	c.subs[id] = active
	c.mu.Unlock()

	tsub, err := c.tr.Subscribe(sub.Filters(), id)
	if err != nil {
		c.removeSubscription(id)
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	active.attach(tsub)
	go active.watchHandleClose()

	c.logger.Debug("subscribed", "id", id, "filters", len(sub.Filters()))
	return active, nil
}

// removeSubscription detaches a handle. Idempotent: both unsubscribe
// triggers and the handle-closure path may call it in any order.
func (c *Connection) removeSubscription(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

// resubscribeAll re-issues the transport subscription for every attached
// handle after a reconnect; transport subscriptions die with the session.
func (c *Connection) resubscribeAll() {
	c.mu.Lock()
	actives := make([]*ActiveSubscription, 0, len(c.subs))
	for _, a := range c.subs {
		actives = append(actives, a)
	}
	c.mu.Unlock()

	for _, a := range actives {
		tsub, err := c.tr.Subscribe(a.handle.Filters(), a.id)
		if err != nil {
			c.logger.Warn("resubscribe failed", "id", a.id, "error", err)
			continue
		}
		a.attach(tsub)
	}
}

// Publish submits the event to the transport and bridges the asynchronous
// acknowledgment, logging the event's raw form on both outcomes. Publish
// never retries; a failure is the caller's to observe on the returned
// result.
func (c *Connection) Publish(ev nostr.Event) (*PublishResult, error) {
	ack, err := c.tr.Publish(ev)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", ev.ID, err)
	}

	res := &PublishResult{
		ok:     make(chan string, 1),
		failed: make(chan error, 1),
	}
	go c.bridgeAck(ev, ack, res)

	return res, nil
}

func (c *Connection) bridgeAck(ev nostr.Event, ack PublishAck, res *PublishResult) {
	raw, _ := json.Marshal(ev)

	select {
	case reason, ok := <-ack.OK():
		if !ok {
			return
		}
		c.logger.Debug("publish acknowledged", "event", string(raw), "reason", reason)
		res.ok <- reason

	case err, ok := <-ack.Failed():
		if !ok {
			return
		}
		c.logger.Warn("publish failed", "event", string(raw), "error", err)
		res.failed <- err
	}
}

func (c *Connection) emit(sig Signal) {
	select {
	case c.signals <- sig:
	default:
		c.logger.Warn("signal buffer full, dropping signal", "type", sig.Type)
	}
}

// PublishResult is the asynchronous outcome of a Publish. Exactly one of
// OK or Failed yields a value.
type PublishResult struct {
	ok     chan string
	failed chan error
}

// OK yields the relay's acknowledgment detail on success.
func (r *PublishResult) OK() <-chan string {
	return r.ok
}

// Failed yields the failure reported by the relay or the transport.
func (r *PublishResult) Failed() <-chan error {
	return r.failed
}

// ActiveSubscription is a handle attached to a connection. It tracks the
// current transport subscription, which is swapped on reconnect.
type ActiveSubscription struct {
	conn   *Connection
	handle Subscription
	id     string

	mu   sync.Mutex
	tsub TransportSubscription
}

// ID returns the handle's identifier.
func (a *ActiveSubscription) ID() string {
	return a.id
}

// Unsubscribe detaches the handle from the connection, then delegates to
// the underlying transport unsubscribe. Safe to call more than once and
// safe to race with the handle's own closure.
func (a *ActiveSubscription) Unsubscribe() {
	a.conn.removeSubscription(a.id)

	a.mu.Lock()
	tsub := a.tsub
	a.tsub = nil
	a.mu.Unlock()

	if tsub != nil {
		tsub.Unsubscribe()
	}
}

// attach swaps in a transport subscription and starts its bridge. The
// previous bridge, if any, exits when its channels close with the old
// session.
func (a *ActiveSubscription) attach(tsub TransportSubscription) {
	a.mu.Lock()
	a.tsub = tsub
	a.mu.Unlock()

	go a.bridge(tsub)
}

// bridge delivers events and the EOSE signal from one transport
// subscription into the handle, tagging each event with the originating
// connection.
func (a *ActiveSubscription) bridge(tsub TransportSubscription) {
	events := tsub.Events()
	eose := tsub.EndOfStoredEvents()

	for events != nil || eose != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			a.handle.HandleEvent(&Event{Event: ev, Relay: a.conn})

		case _, ok := <-eose:
			eose = nil
			if ok {
				a.handle.HandleEOSE()
			}
		}
	}
}

// watchHandleClose detaches the handle when it signals its own closure,
// covering subscriptions closed by logic other than Unsubscribe.
func (a *ActiveSubscription) watchHandleClose() {
	<-a.handle.Done()
	a.conn.removeSubscription(a.id)
}
