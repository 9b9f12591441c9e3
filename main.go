package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"webhook-gateway/internal/callback"
	"webhook-gateway/internal/config"
	"webhook-gateway/internal/db"
	"webhook-gateway/internal/kafka"
	"webhook-gateway/internal/logging"
	"webhook-gateway/internal/metrics"
	"webhook-gateway/internal/provider"
	"webhook-gateway/internal/server"
	"webhook-gateway/internal/service"
)

const shutdownTimeout = 20 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoadConfig(".")
	logger := logging.GetLogger(cfg.Logs)

	metrics.Setup(cfg.Metrics, logger)

	connStr := db.GetConnStr(cfg.Database)

	if err := db.RunMigrations(connStr); err != nil {
		log.Fatal(err)
	}

	dbpool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	integrations := db.NewIntegrationRepository(dbpool)
	payments := db.NewPaymentRepository(dbpool)
	forwardLogs := db.NewForwardLogRepository(dbpool)
	outbox := db.NewOutboxRepository(dbpool)
	ledger := db.NewLedger(dbpool, integrations, payments, outbox, cfg.Kafka.Enabled())

	if cfg.Kafka.Enabled() {
		writer := kafka.NewWriter(cfg.Kafka)
		defer writer.Close()

		producer := callback.NewProducer(outbox, writer, cfg.Callback.Producer, logger)
		producer.Start(ctx)
	} else {
		logger.Info("Kafka broker not configured, payment events are not published")
	}

	sender := callback.NewSender(cfg.Callback.Sender, logger)
	registry := provider.NewRegistry(cfg.Gateway.UnsignedProviders, provider.NewTBank(cfg.Providers.TBank))
	gateway := service.NewGateway(integrations, ledger, forwardLogs, sender, registry, logger)

	srv := server.New(cfg.Server, server.NewRouter(gateway, cfg.Server, logger))

	go func() {
		logger.Info("Starting webhook gateway", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down webhook gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}
}
