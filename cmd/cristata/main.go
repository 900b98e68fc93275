package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/cristata/pkg/billing"
	"github.com/platinummonkey/cristata/pkg/config"
	"github.com/platinummonkey/cristata/pkg/crdt"
	"github.com/platinummonkey/cristata/pkg/files"
	"github.com/platinummonkey/cristata/pkg/middleware"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/server"
	"github.com/platinummonkey/cristata/pkg/storage"
	"github.com/platinummonkey/cristata/pkg/tenants"
)

var version = "dev"

func main() {
	checkConfig := flag.Bool("check-config", false, "Validate the configuration and every tenant definition, then exit")
	flag.Parse()

	boot := logrus.New()
	boot.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}
	if *checkConfig {
		if err := validateTenants(cfg); err != nil {
			boot.Fatalf("Tenant configuration invalid: %v", err)
		}
		boot.Info("Configuration is valid")
		return
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("version", version)
	ctx := observability.WithLogger(context.Background(), logger)

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		boot.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	otelMetrics, err := observability.NewOTelMetrics()
	if err != nil {
		boot.Fatalf("Failed to create OpenTelemetry instruments: %v", err)
	}

	client, err := storage.ConnectMongo(ctx, cfg.Storage)
	if err != nil {
		boot.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	boot.WithField("database", cfg.Storage.MongoAppDatabase).Info("Connected to MongoDB")

	rdb, err := storage.ConnectRedis(ctx, cfg.Storage)
	if err != nil {
		boot.Fatalf("Failed to connect to Redis: %v", err)
	}
	if rdb == nil {
		boot.Info("Redis not configured, team lookups are cached in process only")
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	opts := []server.Option{
		server.WithProvisioner(tenants.NewMongoProvisioner(client)),
		server.WithMetrics(metrics),
		server.WithOTelMetrics(otelMetrics),
	}
	var closers []observability.ShutdownFunc

	var source tenants.Source
	switch cfg.Tenants.Source {
	case config.TenantSourceDir:
		source = tenants.NewDirSource(cfg.Tenants.Dir)
		if cfg.Billing.WebhookSecret != "" {
			boot.Warn("Stripe webhooks need the mongo tenant source, billing is disabled")
		}
	default:
		mongoSource := tenants.NewMongoSource(client.Database(cfg.Storage.MongoAppDatabase))
		if err := mongoSource.EnsureIndexes(ctx); err != nil {
			boot.Fatalf("Failed to create tenant indexes: %v", err)
		}
		source = mongoSource
		if cfg.Billing.WebhookSecret != "" {
			opts = append(opts, server.WithBilling(billing.NewService(mongoSource, cfg.Billing.WebhookSecret,
				billing.WithTolerance(cfg.Billing.Tolerance),
				billing.WithMetrics(metrics),
			)))
		}
	}

	if cfg.CRDT.URL != "" {
		mirror, err := crdt.NewClient(cfg.CRDT)
		if err != nil {
			boot.Fatalf("Failed to create CRDT client: %v", err)
		}
		opts = append(opts, server.WithMirror(mirror))
		closers = append(closers, func(context.Context) error { return mirror.Close() })
	} else {
		boot.Warn("CRDT mirror not configured, mutations are not mirrored")
	}

	if cfg.Storage.S3Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			boot.Fatalf("Failed to create S3 client: %v", err)
		}
		opts = append(opts, server.WithFiles(files.NewS3Signer(s3Client, cfg.Storage)))
	}

	if cfg.Auth.Enabled() {
		verifier, err := middleware.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			boot.Fatalf("Failed to discover OIDC issuer: %v", err)
		}
		opts = append(opts, server.WithAuth(middleware.NewAuthMiddleware(verifier, middleware.NewMongoProfiles(client))))
	} else {
		boot.Warn("Authentication disabled, every request is anonymous")
	}

	maintenance := cron.New()
	if cfg.Server.RateLimitPerMinute > 0 {
		limits := middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.Server.RateLimitBurst,
		}
		if rdb != nil {
			opts = append(opts, server.WithRateLimiter(middleware.NewRedisLimiter(rdb, limits, "")))
		} else {
			limiter := middleware.NewMemoryLimiter(limits)
			if _, err := maintenance.AddFunc("@every 5m", limiter.Cleanup); err != nil {
				boot.Fatalf("Failed to schedule rate limiter cleanup: %v", err)
			}
			opts = append(opts, server.WithRateLimiter(limiter))
		}
	}
	maintenance.Start()

	cristata := server.New(server.SettingsFromConfig(cfg), source, server.NewMongoBackend(client, rdb, metrics), opts...)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      cristata.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     cristata.HealthHandler(observability.NewHealthChecker(version, client, rdb), registry),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	runCtx, stopRun := context.WithCancel(ctx)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := cristata.Run(runCtx); err != nil {
			boot.Fatalf("Tenant orchestrator failed: %v", err)
		}
	}()

	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			boot.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				boot.Fatalf("Server on %s failed: %v", srv.Addr, err)
			}
		}(srv)
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	// shutdown funcs run concurrently, so the ordered teardown is one func
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopRun()
		<-maintenance.Stop().Done()
		select {
		case <-runDone:
		case <-ctx.Done():
		}
		var errs []error
		for _, closer := range closers {
			errs = append(errs, closer(ctx))
		}
		if rdb != nil {
			errs = append(errs, rdb.Close())
		}
		errs = append(errs, client.Disconnect(ctx))
		return errors.Join(errs...)
	})
	shutdown.RegisterShutdownFunc(providers.Shutdown)

	boot.Info("Cristata started")
	if err := shutdown.WaitForShutdown(); err != nil {
		boot.Fatalf("Shutdown failed: %v", err)
	}
	boot.Info("Cristata stopped")
}

// validateTenants builds every tenant schema without storage, which
// surfaces configuration errors before a deploy
func validateTenants(cfg *config.Config) error {
	if cfg.Tenants.Source != config.TenantSourceDir {
		return nil
	}
	list, err := tenants.NewDirSource(cfg.Tenants.Dir).List(context.Background())
	if err != nil {
		return err
	}
	var errs []error
	for _, t := range list {
		if _, err := server.Compile(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
