// Package main implements flowdiffd, the HTTP service that stores flow
// documents and edits them with diff batches.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/config"
	"github.com/c360/flowdiff/diff"
	"github.com/c360/flowdiff/flowstore"
	"github.com/c360/flowdiff/health"
	"github.com/c360/flowdiff/metric"
	"github.com/c360/flowdiff/natsclient"
	"github.com/c360/flowdiff/pkg/retry"
	"github.com/c360/flowdiff/pkg/tlsutil"
	"github.com/c360/flowdiff/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "flowdiffd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_paths", cliCfg.ConfigPaths)
		return nil
	}

	logger.Info("Starting flowdiffd",
		"version", Version,
		"build_time", BuildTime,
		"store", cfg.Store.Backend,
		"catalog", cfg.Catalog.Path)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	return serve(ctx, cfg, app.server, logger)
}

// loadConfig merges the config layers, then lets explicit log flags win
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range cliCfg.ConfigPaths {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds everything build wires together
type app struct {
	server  *http.Server
	catalog *catalog.Provider
	nats    *natsclient.Client
	redis   *flowstore.RedisStore
}

func (a *app) close() {
	if a.catalog != nil {
		_ = a.catalog.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.nats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.nats.Close(ctx)
	}
}

// healthChecker probes the catalog and whichever store backend is active.
func (a *app) healthChecker(svc *service.DiffService) *health.Checker {
	checker := health.NewChecker(appName, 5*time.Second)
	checker.Add("catalog", service.CatalogProbe(svc))
	if a.nats != nil {
		nc := a.nats
		checker.Add("nats", func(context.Context) error {
			if !nc.IsHealthy() {
				return fmt.Errorf("connection %s", nc.Status())
			}
			return nil
		})
	}
	if a.redis != nil {
		checker.Add("redis", a.redis.Ping)
	}
	return checker
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
		registry.CoreMetrics().SetBuildInfo(Version)
	}

	provider, err := catalog.NewProvider(ctx, catalog.FileSource{Path: cfg.Catalog.Path}, cfg.Catalog.TTL,
		catalog.WithLogger(logger), catalog.WithMetrics(registry))
	if err != nil {
		return nil, fmt.Errorf("create catalog provider: %w", err)
	}
	a.catalog = provider

	// fail fast on an unreadable catalog
	if _, err := provider.Catalog(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	store, err := buildStore(ctx, cfg, logger, registry, a)
	if err != nil {
		a.close()
		return nil, err
	}

	engine, err := diff.NewEngine(diff.WithLogger(logger), diff.WithMetrics(registry))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create diff engine: %w", err)
	}

	svc, err := service.NewDiffService(store, provider,
		service.WithLogger(logger),
		service.WithEngine(engine),
		service.WithDefaults(diff.Options{
			ValidateAfter:   cfg.Diff.ValidateAfter,
			ContinueOnError: cfg.Diff.ContinueOnError,
		}),
		service.WithRetryAttempts(cfg.Diff.RetryAttempts),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create diff service: %w", err)
	}

	handlerOpts := []service.HandlerOption{
		service.WithHandlerLogger(logger),
		service.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		service.WithDiffRateLimit(cfg.HTTP.DiffRateLimit, cfg.HTTP.DiffRateBurst),
		service.WithHealthChecker(a.healthChecker(svc)),
	}
	if registry != nil {
		handlerOpts = append(handlerOpts, service.WithMetricsEndpoint(registry, cfg.Metrics.Path))
	}
	handler := service.NewHandler(svc, handlerOpts...)

	a.server = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	tlsConfig, err := tlsutil.LoadServerConfig(cfg.HTTP.TLS)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load HTTP TLS config: %w", err)
	}
	a.server.TLSConfig = tlsConfig
	return a, nil
}

func buildStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
	a *app,
) (flowstore.Store, error) {
	storeOpts := []flowstore.Option{flowstore.WithMetrics(registry)}

	switch cfg.Store.Backend {
	case config.StoreNATS:
		client, err := connectToNATS(ctx, cfg.Store.NATS, logger)
		if err != nil {
			return nil, err
		}
		a.nats = client
		store, err := flowstore.NewNATSStore(ctx, client, cfg.Store.NATS.Bucket, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("open NATS flow store: %w", err)
		}
		return store, nil

	case config.StoreRedis:
		var store *flowstore.RedisStore
		err := retry.Do(ctx, retry.Quick(), func() error {
			var err error
			store, err = flowstore.NewRedisStore(ctx, flowstore.RedisOptions{
				Addr:     cfg.Store.Redis.Addr,
				Password: cfg.Store.Redis.Password,
				DB:       cfg.Store.Redis.DB,
				Prefix:   cfg.Store.Redis.Prefix,
			}, storeOpts...)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("open Redis flow store: %w", err)
		}
		a.redis = store
		logger.Info("Connected to Redis", "addr", cfg.Store.Redis.Addr)
		return store, nil

	default:
		logger.Warn("Using in-memory flow store; flows are lost on restart")
		store, err := flowstore.NewMemoryStore(storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("open memory flow store: %w", err)
		}
		return store, nil
	}
}

// connectToNATS establishes the NATS connection and waits for it to be ready
func connectToNATS(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithPingInterval(cfg.PingInterval),
		natsclient.WithDrainTimeout(cfg.DrainTimeout),
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("load NATS TLS config: %w", err)
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}

	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "url", cfg.URL)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}

// serve runs server until ctx is cancelled, then drains it
func serve(ctx context.Context, cfg *config.Config, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if server.TLSConfig != nil {
			logger.Info("HTTPS server listening", "addr", server.Addr)
			err = server.ListenAndServeTLS("", "")
		} else {
			logger.Info("HTTP server listening", "addr", server.Addr)
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("flowdiffd shutdown complete")
	return nil
}
