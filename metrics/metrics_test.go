package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nostrkit/relaymgr/relay"
)

// stubTransport satisfies relay.Transport with just enough behavior to
// drive a connect/disconnect cycle.
type stubTransport struct {
	notices     chan string
	disconnects chan error
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		notices:     make(chan string, 1),
		disconnects: make(chan error, 1),
	}
}

func (s *stubTransport) Connect(ctx context.Context) error { return nil }

func (s *stubTransport) Close() error {
	s.disconnects <- nil
	return nil
}

func (s *stubTransport) Subscribe(filters nostr.Filters, id string) (relay.TransportSubscription, error) {
	return nil, nil
}

func (s *stubTransport) Publish(ev nostr.Event) (relay.PublishAck, error) {
	return nil, nil
}

func (s *stubTransport) Notices() <-chan string { return s.notices }
func (s *stubTransport) Disconnects() <-chan error { return s.disconnects }

func nextSignal(t *testing.T, conn *relay.Connection, want relay.SignalType) relay.Signal {
	t.Helper()
	select {
	case sig := <-conn.Signals():
		if sig.Type != want {
			t.Fatalf("signal type = %v, want %v", sig.Type, want)
		}
		return sig
	case <-time.After(2 * time.Second):
		t.Fatalf("signal %v never arrived", want)
		return relay.Signal{}
	}
}

func TestObserveSignal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	conn := relay.New("wss://relay.test", newStubTransport(), relay.Config{}, nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	m.ObserveSignal(nextSignal(t, conn, relay.SignalConnect))

	if got := testutil.ToFloat64(m.Signals.WithLabelValues("wss://relay.test", "connect")); got != 1 {
		t.Errorf("connect signal count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Status.WithLabelValues("wss://relay.test")); got != float64(relay.StatusConnected) {
		t.Errorf("status gauge = %v, want %v", got, float64(relay.StatusConnected))
	}
	if got := testutil.ToFloat64(m.Attempts.WithLabelValues("wss://relay.test")); got != 1 {
		t.Errorf("attempts gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Successes.WithLabelValues("wss://relay.test")); got != 1 {
		t.Errorf("successes gauge = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ConnectionDuration); got != 0 {
		t.Errorf("duration series = %d before any disconnect, want 0", got)
	}

	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	m.ObserveSignal(nextSignal(t, conn, relay.SignalDisconnect))

	if got := testutil.ToFloat64(m.Signals.WithLabelValues("wss://relay.test", "disconnect")); got != 1 {
		t.Errorf("disconnect signal count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Status.WithLabelValues("wss://relay.test")); got != float64(relay.StatusDisconnected) {
		t.Errorf("status gauge = %v, want %v", got, float64(relay.StatusDisconnected))
	}
	if got := testutil.CollectAndCount(m.ConnectionDuration); got != 1 {
		t.Errorf("duration series = %d after a disconnect, want 1", got)
	}
}

func TestObserveNotice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	tr := newStubTransport()
	conn := relay.New("wss://relay.test", tr, relay.Config{}, nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	nextSignal(t, conn, relay.SignalConnect)

	tr.notices <- "relay restarting soon"
	m.ObserveSignal(nextSignal(t, conn, relay.SignalNotice))

	if got := testutil.ToFloat64(m.Signals.WithLabelValues("wss://relay.test", "notice")); got != 1 {
		t.Errorf("notice signal count = %v, want 1", got)
	}
}
