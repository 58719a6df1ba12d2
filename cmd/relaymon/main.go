// relaymon connects to the configured nostr relays, logs every lifecycle
// signal, and exports connection health as Prometheus metrics.
// Usage: go run ./cmd/relaymon --config configs/relaymon.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nostrkit/relaymgr/config"
	"github.com/nostrkit/relaymgr/metrics"
	"github.com/nostrkit/relaymgr/relay"
	"github.com/nostrkit/relaymgr/transport"
	"github.com/nostrkit/relaymgr/version"
)

func main() {
	configPath := flag.String("config", "configs/relaymon.example.yaml", "path to config file")
	firehose := flag.Bool("firehose", false, "subscribe to recent notes on each relay")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relaymon",
		"version", version.String(),
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded", "relays", len(cfg.Relays))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	relayCfg := relay.Config{
		ShortLivedThreshold:  cfg.Reconnect.ShortLivedThreshold,
		ReconnectCooldown:    cfg.Reconnect.Cooldown,
		NoticeReconnectDelay: cfg.Reconnect.NoticeDelay,
		FlappingMinSamples:   cfg.Reconnect.FlappingMinSamples,
		FlappingMaxStdDev:    cfg.Reconnect.FlappingMaxStdDev,
		SignalBuffer:         cfg.Reconnect.SignalBuffer,
	}
	trCfg := transport.Config{
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		PingTimeout:      cfg.Transport.PingTimeout,
		EventBuffer:      cfg.Transport.EventBuffer,
		NoticeBuffer:     cfg.Transport.NoticeBuffer,
	}

	g, gctx := errgroup.WithContext(ctx)

	conns := make([]*relay.Connection, 0, len(cfg.Relays))
	for _, url := range cfg.Relays {
		tr := transport.New(url, trCfg, logger)
		conn := relay.New(url, tr, relayCfg, logger)
		conns = append(conns, conn)

		g.Go(func() error {
			pumpSignals(gctx, conn, m, logger)
			return nil
		})

		if err := conn.Connect(ctx); err != nil {
			logger.Warn("initial connect failed", "relay", url, "error", err)
			continue
		}

		if *firehose {
			watcher := newNoteWatcher(logger)
			if _, err := conn.Subscribe(watcher); err != nil {
				logger.Warn("firehose subscribe failed", "relay", url, "error", err)
			}
		}
	}

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	g.Go(func() error {
		logger.Info("metrics listening", "addr", srv.Addr, "path", cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("relaymon error", "error", err)
	}

	for _, conn := range conns {
		if err := conn.Disconnect(); err != nil {
			logger.Debug("disconnect", "relay", conn.URL(), "error", err)
		}
	}

	logger.Info("relaymon stopped")
}

// pumpSignals drains one connection's signal stream into the metrics and
// the log.
func pumpSignals(ctx context.Context, conn *relay.Connection, m *metrics.Registry, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case sig := <-conn.Signals():
			m.ObserveSignal(sig)

			switch sig.Type {
			case relay.SignalConnect:
				logger.Info("signal: connect", "relay", conn.URL())
			case relay.SignalDisconnect:
				logger.Info("signal: disconnect", "relay", conn.URL(), "reason", sig.Err)
			case relay.SignalNotice:
				logger.Info("signal: notice", "relay", conn.URL(), "text", sig.Notice)
			case relay.SignalFlapping:
				logger.Warn("signal: flapping",
					"relay", conn.URL(),
					"attempts", sig.Stats.Attempts,
					"successes", sig.Stats.Successes,
					"samples", len(sig.Stats.Durations),
				)
			}
		}
	}
}

// noteWatcher is a minimal subscription handle that logs recent notes.
type noteWatcher struct {
	id     string
	logger *slog.Logger
	done   chan struct{}
}

func newNoteWatcher(logger *slog.Logger) *noteWatcher {
	return &noteWatcher{
		id:     uuid.NewString(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (w *noteWatcher) ID() string { return w.id }

func (w *noteWatcher) Filters() nostr.Filters {
	return nostr.Filters{{Kinds: []int{nostr.KindTextNote}, Limit: 10}}
}

func (w *noteWatcher) HandleEvent(ev *relay.Event) {
	w.logger.Info("note",
		"relay", ev.Relay.URL(),
		"id", ev.ID,
		"pubkey", ev.PubKey,
		"content", ev.Content,
	)
}

func (w *noteWatcher) HandleEOSE() {
	w.logger.Info("end of stored events")
}

func (w *noteWatcher) Done() <-chan struct{} { return w.done }
