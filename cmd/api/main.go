package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/b24bridge/smsbridge/internal/api/router"
	"github.com/b24bridge/smsbridge/internal/bindings"
	"github.com/b24bridge/smsbridge/internal/bitrix"
	appconfig "github.com/b24bridge/smsbridge/internal/config"
	"github.com/b24bridge/smsbridge/internal/crm"
	"github.com/b24bridge/smsbridge/internal/messaging"
	"github.com/b24bridge/smsbridge/internal/observability/metrics"
	"github.com/b24bridge/smsbridge/internal/tenant"
	"github.com/b24bridge/smsbridge/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting smsbridge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
	)

	bindingStore, credStore, closeStores, err := buildStores(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize stores", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	resolver := tenant.NewResolver(bindingStore, credStore, logger)
	oauth := bitrix.NewOAuth(cfg.CRMClientID, cfg.CRMClientSecret, cfg.CRMOAuthBaseURL, logger)

	registry := prometheus.NewRegistry()
	bridgeMetrics := metrics.NewBridgeMetrics(registry)

	onRenewed := func(ctx context.Context, domain, memberID string, token tenant.AuthToken) {
		if err := credStore.UpdateToken(ctx, domain, memberID, token); err != nil {
			logger.Error("failed to persist renewed token", "error", err, "domain", domain)
			bridgeMetrics.ObserveTokenRefresh("error")
			return
		}
		bridgeMetrics.ObserveTokenRefresh("ok")
	}
	factory := func(t *tenant.Tenant) (crm.Client, error) {
		return bitrix.NewClient(t, oauth, onRenewed, logger)
	}

	callbackHandler := messaging.NewHandler(
		resolver, factory,
		crm.RelatedMode(cfg.RelatedEntityMode),
		cfg.DefaultAssignedUserID,
		bridgeMetrics, logger,
	)
	bindingsHandler := bindings.NewHandler(bindingStore, cfg.BindToken, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		CallbackHandler:    callbackHandler,
		BindingsHandler:    bindingsHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CallbackRateLimit:  cfg.CallbackRateLimit,
		CallbackRateBurst:  cfg.CallbackRateBurst,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.TokenRefreshEnabled {
		worker := bitrix.NewRefreshWorker(oauth, credStore, logger).
			WithInterval(cfg.TokenRefreshInterval).
			WithRefreshBefore(cfg.TokenRefreshBefore)
		go worker.Start(workerCtx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildStores selects the persistence backend for phone bindings and
// tenant credentials.
func buildStores(cfg *appconfig.Config, logger *logging.Logger) (tenant.BindingStore, tenant.CredentialStore, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		store := tenant.NewRedisStore(client, logger)
		return store, store, func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := tenant.NewPostgresStore(pool, logger)
		if err := store.EnsureSchema(context.Background()); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, store, pool.Close, nil

	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		store := tenant.NewFileStore(cfg.BindingsFile, cfg.CredsFile, logger)
		return store, store, func() {}, nil
	}
}
