package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/messaging"
	"github.com/farmlink/orders-api/middleware"
	"github.com/farmlink/orders-api/repository"
	"github.com/farmlink/orders-api/services"
)

const tokenPurgeInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	config.SetupLogger(cfg.LogLevel)
	slog.Info("Starting FarmLink orders API", "env", cfg.GoEnv)

	if err := config.ConnectDatabase(cfg.DatabaseURL); err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migration completed successfully")

	services.InitOrderService(
		repository.NewOrderRepository(db),
		repository.NewProductRepository(db),
		services.NewStripeGateway(cfg),
		services.OptionsFromConfig(cfg),
	)

	tokens := repository.NewTokenRepository(db)
	router := setupRouter(cfg,
		middleware.EnsureValidToken(cfg),
		middleware.RejectRevokedTokens(tokens),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var broker *messaging.RabbitMQClient
	if cfg.EventsEnabled() {
		broker, err = messaging.NewRabbitMQClient(cfg.RabbitMQURL, cfg.OrderEventsExchange)
		if err != nil {
			slog.Error("Failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		worker := messaging.NewOutboxWorker(repository.NewOutboxRepository(db), broker, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go worker.Run(ctx)
	} else {
		slog.Warn("RABBITMQ_URL not set, order events stay in the outbox")
	}

	go purgeRevokedTokens(ctx, tokens)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("Server is running", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop <- syscall.SIGTERM
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if broker != nil {
		if err := broker.Close(); err != nil {
			slog.Error("RabbitMQ close error", "error", err)
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Database connection close error", "error", err)
		}
	}

	slog.Info("Application shutdown complete")
}

// purgeRevokedTokens drops revocations for tokens that have expired anyway
func purgeRevokedTokens(ctx context.Context, tokens *repository.TokenRepository) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tokens.PurgeExpired(ctx)
			if err != nil {
				slog.Error("Failed to purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("Purged expired token revocations", "count", n)
			}
		}
	}
}
