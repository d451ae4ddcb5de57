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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvpsettle/dvpd/internal/config"
	"github.com/dvpsettle/dvpd/internal/genesis"
	"github.com/dvpsettle/dvpd/internal/handler"
	"github.com/dvpsettle/dvpd/internal/ledger"
	"github.com/dvpsettle/dvpd/internal/service"
	"github.com/dvpsettle/dvpd/internal/store"
	"github.com/dvpsettle/dvpd/internal/stream"
	"github.com/dvpsettle/dvpd/internal/watch"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ledger and off-ledger stores.
	l := ledger.New()
	contracts := store.NewContractStore()
	participantStore := store.NewParticipantStore()
	webhookStore := store.NewWebhookStore()

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	// Genesis: the settlement factory plus whatever the file declares.
	var doc *genesis.Document
	if cfg.GenesisFile != "" {
		if doc, err = genesis.Load(cfg.GenesisFile); err != nil {
			logger.Error("failed to load genesis", slog.String("file", cfg.GenesisFile), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	deployed, err := genesis.Apply(context.Background(), l, doc, contracts)
	if err != nil {
		logger.Error("failed to apply genesis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("genesis applied",
		slog.String("factory", deployed.Factory.Address().Hex()),
		slog.Int("contracts", len(deployed.Addresses)),
	)

	// Services.
	webhookSvc := service.NewWebhookService(webhookStore, participantStore, cfg.WebhookTimeout, metrics, logger)
	participantSvc := service.NewParticipantService(participantStore, logger)
	settlementSvc := service.NewSettlementService(l, deployed.Factory, metrics, logger)
	tokenSvc := service.NewTokenService(l, contracts, logger)
	eventSvc := service.NewEventService(l)

	// Committed events fan out to metrics, webhooks and, when configured, Kafka.
	l.Subscribe(metrics.ObserveEvents)
	l.Subscribe(webhookSvc.DispatchEvents)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinkDone := make(chan struct{})
	if len(cfg.KafkaBrokers) > 0 {
		sink := stream.NewSink(stream.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), cfg.EventBuffer, logger)
		l.Subscribe(sink.Publish)
		go func() {
			defer close(sinkDone)
			if err := sink.Run(ctx); err != nil {
				logger.Error("event sink stopped", slog.String("error", err.Error()))
			}
		}()
		logger.Info("publishing events to kafka",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	} else {
		close(sinkDone)
	}

	// Overdue monitor.
	monitor := watch.NewOverdueMonitor(cfg.OverdueScanInterval, settlementSvc, webhookSvc, metrics.TradesOverdue, logger)
	monitor.Start(ctx)

	// Router.
	router := handler.NewRouter(
		participantSvc,
		settlementSvc,
		tokenSvc,
		eventSvc,
		webhookSvc,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		logger,
	)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, then the monitor and the event sink.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	select {
	case <-sinkDone:
	case <-shutdownCtx.Done():
		logger.Warn("event sink did not drain before shutdown timeout")
	}

	logger.Info("server stopped")
}
