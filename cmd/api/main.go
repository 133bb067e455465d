// Safari Payments Service
//
// This is the main entry point for the payment processing service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/config"
	"github.com/Brymax254/safari-payments/internal/api"
	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/eventbus"
	"github.com/Brymax254/safari-payments/internal/metrics"
	"github.com/Brymax254/safari-payments/internal/payment"
	"github.com/Brymax254/safari-payments/internal/platform/bookingcore"
	"github.com/Brymax254/safari-payments/internal/platform/paystack"
	"github.com/Brymax254/safari-payments/internal/platform/pesapal"
	"github.com/Brymax254/safari-payments/internal/storage/sqlite"
	"github.com/Brymax254/safari-payments/internal/tokencache"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Load()
	if err := validateConfig(cfg, logger); err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}
	logger.Info("starting safari-payments",
		zap.String("port", cfg.Server.Port),
		zap.String("pesapal_base_url", cfg.Pesapal.BaseURL))

	// Storage
	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := sqlite.RunMigrations(db); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}
	repo := sqlite.NewPaymentRepository(db)

	// Token cache: Redis when configured, in-process memory otherwise.
	var tokenStore tokencache.Store = tokencache.NewMemoryStore()
	if cfg.Storage.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		tokenStore = tokencache.NewRedisStore(rdb, "safari-payments:pesapal-token")
		logger.Info("using redis token cache", zap.String("addr", cfg.Storage.RedisAddr))
	}

	// Provider gateways
	pesapalCfg := pesapal.Config{
		BaseURL:        cfg.Pesapal.BaseURL,
		ConsumerKey:    cfg.Pesapal.ConsumerKey,
		ConsumerSecret: cfg.Pesapal.ConsumerSecret,
		NotificationID: cfg.Pesapal.NotificationID,
		CallbackURL:    cfg.CallbackURL(),
		Timeout:        cfg.Storage.HTTPTimeout,
	}
	tokens := pesapal.NewTokenSource(pesapalCfg, tokenStore, logger)
	pesapalGateway := pesapal.NewClient(pesapalCfg, tokens, logger)

	// The gateway list doubles as the provider registry: checkout requests
	// pick a provider by name and the first entry is the default.
	gateways := []domain.Gateway{pesapalGateway}
	if cfg.Paystack.SecretKey != "" {
		gateways = append(gateways, paystack.NewClient(paystack.Config{
			BaseURL:     cfg.Paystack.BaseURL,
			SecretKey:   cfg.Paystack.SecretKey,
			CallbackURL: cfg.CallbackURL(),
			Timeout:     cfg.Storage.HTTPTimeout,
		}, logger))
	}

	// Events: the booking core is told about every settled payment.
	bus := eventbus.NewInMemoryBus()
	coreClient := bookingcore.NewClient(cfg.BookingCore.BaseURL, cfg.BookingCore.APIKey, logger)
	bus.Subscribe(domain.EventPaymentConfirmed, coreClient.Subscriber())
	bus.Subscribe(domain.EventPaymentFailed, coreClient.Subscriber())

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Service layer
	paymentService := payment.NewService(repo, gateways, m, logger)
	reconciler := payment.NewReconciler(repo, gateways, bus, m, logger)

	// API layer
	handler := api.NewHandler(paymentService, reconciler, cfg.Paystack.SecretKey, logger)
	router := api.SetupRouter(handler, cfg.Server.ServiceAPIKey, cfg.Server.GinMode, registry)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// validateConfig checks that required configuration values are set.
func validateConfig(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Pesapal.ConsumerKey == "" || cfg.Pesapal.ConsumerSecret == "" {
		return fmt.Errorf("PESAPAL_CONSUMER_KEY and PESAPAL_CONSUMER_SECRET are required")
	}
	if cfg.Pesapal.NotificationID == "" {
		logger.Warn("PESAPAL_NOTIFICATION_ID not set; run cmd/registeripn and set it")
	}
	if cfg.Server.ServiceAPIKey == "" {
		logger.Warn("SERVICE_API_KEY not set; internal endpoints are unauthenticated")
	}
	if cfg.Paystack.SecretKey == "" {
		logger.Warn("PAYSTACK_SECRET_KEY not set; paystack checkout and webhooks disabled")
	}
	return nil
}
