// Command estransport-sniff wires config, logging, a ConnectionPool
// and a Transport together and performs one GET (plus a background
// sniff when the configuration sets sniff_on_start; the sniff is not
// ordered before the GET), demonstrating the stack end to end without
// reimplementing the
// generated per-endpoint API surface (out of scope, spec.md §1).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olla-labs/estransport/internal/adapter/connection"
	"github.com/olla-labs/estransport/internal/adapter/events"
	"github.com/olla-labs/estransport/internal/adapter/filter"
	"github.com/olla-labs/estransport/internal/adapter/metrics"
	"github.com/olla-labs/estransport/internal/adapter/pool"
	"github.com/olla-labs/estransport/internal/adapter/selector"
	"github.com/olla-labs/estransport/internal/adapter/serializer"
	"github.com/olla-labs/estransport/internal/adapter/transport"
	"github.com/olla-labs/estransport/internal/config"
	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
	"github.com/olla-labs/estransport/internal/logger"
	"github.com/olla-labs/estransport/internal/version"
)

func main() {
	fmt.Fprintf(os.Stderr, "estransport-sniff %s\n", version.Version)

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logInstance, cleanup, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		LogDir:     cfg.Logging.LogDir,
		FileOutput: cfg.Logging.FileOutput,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)
	styled := logger.NewStyledLogger(logInstance)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		styled.Info("shutdown signal received")
		cancel()
	}()

	bus := events.New()
	defer bus.Shutdown()

	collector := metrics.New("estransport")
	collector.Attach(bus)
	defer collector.Detach()

	factory := connection.NewFactory()
	seeds := make([]domain.Descriptor, len(cfg.Pool.Seeds))
	for i, s := range cfg.Pool.Seeds {
		seeds[i] = domain.Descriptor{ID: s.Name, URL: s.URL, Headers: s.Headers}
	}

	p := pool.New(pool.Options{
		Factory:           factory,
		SniffEnabled:      cfg.Pool.SniffEnabled,
		ResurrectStrategy: pool.ResurrectStrategy(cfg.Pool.ResurrectStrategy),
		PingTimeoutMs:     cfg.Pool.PingTimeout.Milliseconds(),
		Emitter:           bus,
	})
	if err := p.Update(ctx, seeds); err != nil {
		styled.Error("failed to seed pool", "error", err)
		os.Exit(1)
	}

	var sel ports.Selector
	switch cfg.Transport.NodeSelector {
	case "random":
		sel = selector.NewRandom()
	case "least-connections":
		sel = selector.NewLeastConnections()
	default:
		sel = selector.NewRoundRobin()
	}

	tcfg := transport.Config{
		MaxRetries:       cfg.Transport.MaxRetries,
		RequestTimeoutMs: cfg.Transport.RequestTimeout.Milliseconds(),
		Compression:      transport.Compression(cfg.Transport.Compression),
		SniffEndpoint:    cfg.Transport.SniffEndpoint,
		SniffOnStart:     cfg.Transport.SniffOnStart,
		Name:             cfg.Transport.Name,
	}

	tr, err := transport.New(tcfg, p, filter.Default, sel, serializer.New(), bus)
	if err != nil {
		styled.Error("failed to construct transport", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	tr.Request(ctx, transport.Params{Method: "GET", Path: "/"}, transport.Options{}, func(res *transport.Result, err error) {
		defer close(done)
		if err != nil {
			styled.Error("request failed", "error", err)
			return
		}
		styled.Info("request succeeded", "status", res.StatusCode)
	})

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		styled.Warn("timed out waiting for request")
	case <-ctx.Done():
	}
}
