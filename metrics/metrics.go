package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nostrkit/relaymgr/relay"
)

// Registry holds all Prometheus metrics for the relay connection manager.
type Registry struct {
	// Connection state
	Status *prometheus.GaugeVec

	// Lifecycle signal counts by type
	Signals *prometheus.CounterVec

	// Stats tracker counters, exported as gauges from snapshots
	Attempts  *prometheus.GaugeVec
	Successes *prometheus.GaugeVec

	// Completed connection lifetimes
	ConnectionDuration *prometheus.HistogramVec
}

// New creates the metric set and registers it with reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relaymgr_connection_status",
				Help: "Connection state (0=disconnected 1=connecting 2=connected 3=disconnecting 4=reconnecting 5=flapping)",
			},
			[]string{"relay"},
		),

		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relaymgr_signals_total",
				Help: "Lifecycle signals emitted, by type",
			},
			[]string{"relay", "type"},
		),

		Attempts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relaymgr_connect_attempts",
				Help: "Connect attempts recorded by the stats tracker",
			},
			[]string{"relay"},
		),

		Successes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relaymgr_connect_successes",
				Help: "Connect attempts that reached the connected state",
			},
			[]string{"relay"},
		),

		ConnectionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relaymgr_connection_duration_seconds",
				Help:    "Completed connection lifetimes in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 3600, 14400},
			},
			[]string{"relay"},
		),
	}

	reg.MustRegister(r.Status, r.Signals, r.Attempts, r.Successes, r.ConnectionDuration)
	return r
}

// ObserveSignal updates the metrics from one lifecycle signal.
func (r *Registry) ObserveSignal(sig relay.Signal) {
	url := sig.Conn.URL()

	r.Signals.WithLabelValues(url, sig.Type.String()).Inc()
	r.Status.WithLabelValues(url).Set(float64(sig.Conn.Status()))

	snap := sig.Conn.Stats()
	r.Attempts.WithLabelValues(url).Set(float64(snap.Attempts))
	r.Successes.WithLabelValues(url).Set(float64(snap.Successes))

	if sig.Type == relay.SignalDisconnect {
		if last, ok := snap.LastDuration(); ok {
			r.ConnectionDuration.WithLabelValues(url).Observe(last.Seconds())
		}
	}
}
