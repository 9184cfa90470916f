package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kindred/internal/batch"
	"kindred/internal/engine"
	"kindred/internal/events"
	"kindred/internal/identity"
	"kindred/internal/platform/config"
	"kindred/internal/platform/httpserver"
	"kindred/internal/platform/logger"
	"kindred/internal/platform/postgres"
	platformredis "kindred/internal/platform/redis"
	"kindred/internal/reconcile"
	"kindred/internal/rescache"
	"kindred/internal/resolve"
	resolvemetrics "kindred/internal/resolve/metrics"
	"kindred/internal/resolve/provider"
	httptransport "kindred/internal/transport/http"
	"kindred/pkg/platform/circuit"
)

// main wires dependencies and owns the process lifecycle. Resolution
// semantics live in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	identityStore := identity.NewPostgresStore(db)
	cacheStore := rescache.NewPostgresStore(db)
	decisionStore := reconcile.NewPostgresStore(db)
	checkpointStore := batch.NewPostgresStore(db)
	for _, m := range []interface {
		Migrate(context.Context) error
	}{identityStore, cacheStore, decisionStore, checkpointStore} {
		if err := m.Migrate(ctx); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	index := identity.NewIndex()
	if err := index.Rebuild(ctx, identityStore); err != nil {
		log.Error("index rebuild failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}

	cacheOpts := []rescache.Option{
		rescache.WithStaleness(cfg.CacheStaleness),
		rescache.WithMetrics(rescache.NewMetrics()),
	}
	if redisClient != nil {
		cacheOpts = append(cacheOpts, rescache.WithHotCopy(redisClient.Client))
		defer redisClient.Close()
	}
	cache := rescache.New(cacheStore, log, cacheOpts...)

	var lookupClient provider.Client
	if cfg.Provider.BaseURL != "" {
		lookupClient = provider.NewHTTPClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	}
	breaker := circuit.New("person-lookup")

	chainCfg := resolve.DefaultChainConfig()
	chainCfg.ProviderTimeout = cfg.Provider.Timeout
	chainCfg.ProviderRetries = cfg.Provider.Retries
	tiers := resolve.Chain(index, identityStore, cache, lookupClient, breaker, chainCfg, log)
	resolver := resolve.NewResolver(tiers, log, resolvemetrics.New())

	reconciler := reconcile.New(identityStore, index, decisionStore, log, reconcile.NewMetrics())

	var sink events.Sink = events.NewMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		sink = kafkaSink
	}
	publisher := events.NewPublisher(sink, log,
		events.WithThreshold(cfg.EventThreshold),
		events.WithBuffer(cfg.EventBuffer),
		events.WithMetrics(events.NewMetrics()),
	)
	defer publisher.Close()

	eng := engine.New(resolver, reconciler, cache, identityStore, publisher, log)
	runner := batch.New(eng, checkpointStore, batch.Config{
		ChunkSize:    cfg.Batch.ChunkSize,
		Parallelism:  cfg.Batch.Parallelism,
		ChunkRetries: cfg.Batch.ChunkRetries,
	}, log)

	health := map[string]httptransport.HealthChecker{
		"postgres": postgres.Health{DB: db},
	}
	if redisClient != nil {
		health["redis"] = redisClient
	}

	handler := httptransport.New(eng, identityStore, runner, checkpointStore, health, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	log.Info("starting identity resolver", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
