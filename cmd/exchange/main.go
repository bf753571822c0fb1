// Package main runs the exchange layer: a REST service wrapping the
// peer-to-peer NFT exchange engine.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	app "github.com/R3E-Network/exchange_layer/internal/app"
	domain "github.com/R3E-Network/exchange_layer/internal/app/domain/market"
	"github.com/R3E-Network/exchange_layer/internal/app/httpapi"
	"github.com/R3E-Network/exchange_layer/internal/app/metrics"
	"github.com/R3E-Network/exchange_layer/internal/app/storage"
	"github.com/R3E-Network/exchange_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/exchange_layer/internal/config"
	"github.com/R3E-Network/exchange_layer/internal/middleware"
	"github.com/R3E-Network/exchange_layer/internal/registry"
	"github.com/R3E-Network/exchange_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/exchange.yaml", "path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		logger.NewDefault("exchange").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New("exchange", logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, closeStore, err := buildStores(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("initialise storage")
		os.Exit(1)
	}
	defer closeStore()

	assetReg, ledger, err := buildRegistry(cfg, log)
	if err != nil {
		log.WithError(err).Error("initialise registry adapters")
		os.Exit(1)
	}

	application, err := app.New(stores, app.Options{
		Admin:    cfg.Admin.Address,
		Operator: cfg.Market.Operator,
		Registry: assetReg,
		Ledger:   ledger,
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	if err := seedMarketConfig(ctx, stores.Config, cfg); err != nil {
		log.WithError(err).Error("seed market configuration")
		os.Exit(1)
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	auth := middleware.NewAuthMiddleware(cfg.Admin.JWTSecret, log.WithField("component", "auth"), []string{"/healthz", "/metrics"})
	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	tracing := middleware.NewTracingMiddleware(log.WithField("component", "http"))
	limiter := middleware.NewRateLimiter(50, 100, log.WithField("component", "ratelimit"))

	apiHandler := httpapi.NewHandler(application)
	var handler http.Handler = metrics.InstrumentHandler(apiHandler)
	handler = limiter.Handler(handler)
	handler = auth.Handler(handler)
	// CORS sits outside auth so preflight requests never need a token.
	handler = cors.Handler(handler)
	handler = tracing.Handler(handler)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("exchange API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	log.Info("exchange stopped")
}

// buildStores selects postgres when a DSN is configured, the in-memory store
// otherwise.
func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Postgres.DSN == "" {
		log.Warn("no postgres DSN configured; using in-memory storage")
		return app.Stores{}, func() {}, nil
	}

	store, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return app.Stores{}, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return app.Stores{}, nil, err
	}
	log.Info("postgres storage initialised")
	return app.Stores{
		Listings: store,
		Config:   store,
		Fees:     store,
	}, func() { store.Close() }, nil
}

func buildRegistry(cfg *config.Config, log *logger.Logger) (registry.AssetRegistry, registry.ValueLedger, error) {
	httpClient := &http.Client{Timeout: cfg.Registry.Timeout}

	bridge, err := registry.NewCustodyBridge(httpClient, cfg.Registry.CustodyEndpoint, cfg.Registry.APIKey, log.WithField("component", "custody"))
	if err != nil {
		return nil, nil, err
	}

	rpc, err := registry.NewRPCClient(registry.RPCConfig{
		RPCURL:  cfg.Registry.RPCURL,
		Timeout: cfg.Registry.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	return registry.NewNeoRegistry(rpc, bridge), registry.NewCustodyLedger(bridge), nil
}

// seedMarketConfig applies the configured fee rate and allow list on first
// boot. A store that already carries non-default state is left untouched so
// admin changes survive restarts.
func seedMarketConfig(ctx context.Context, store storage.ConfigStore, cfg *config.Config) error {
	current, err := store.GetMarketConfig(ctx)
	if err != nil {
		return err
	}
	if current.FeeRate != 0 || current.Paused || len(current.AllowedCollections) > 0 {
		return nil
	}

	seeded := domain.DefaultConfig()
	seeded.FeeRate = cfg.Market.FeeRate
	for _, coll := range cfg.Market.AllowedCollections {
		seeded.AllowedCollections[coll] = true
	}
	return store.SaveMarketConfig(ctx, seeded)
}
