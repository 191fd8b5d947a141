package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/cache"
	"github.com/mmcdole/reelsync/internal/candidate"
	"github.com/mmcdole/reelsync/internal/catalog"
	"github.com/mmcdole/reelsync/internal/config"
	"github.com/mmcdole/reelsync/internal/coordinator"
	"github.com/mmcdole/reelsync/internal/library"
	"github.com/mmcdole/reelsync/internal/log"
	"github.com/mmcdole/reelsync/internal/metrics"
	"github.com/mmcdole/reelsync/internal/reconcile"
	"github.com/mmcdole/reelsync/internal/search"
	"github.com/mmcdole/reelsync/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	metricsFlag  *string
}

func newCommandContext(configFlag, logLevelFlag, metricsFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		metricsFlag:  metricsFlag,
	}
}

// app is the wired engine for one command invocation
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *addon.Client
	catalog *store.CatalogStore
	writer  *catalog.Writer
	library *library.Service
	queries *library.Queries
	search  *search.Service

	closers []io.Closer
	metrics *http.Server
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := strings.TrimSpace(*c.logLevelFlag); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if addr := strings.TrimSpace(*c.metricsFlag); addr != "" {
		cfg.Metrics.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp wires the engine, runs fn and releases the store and log file
func (c *commandContext) withApp(fn func(*app) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newApp(cfg *config.Config) (*app, error) {
	logger, logCloser, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
		logCloser = io.NopCloser(nil)
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	a.client = addon.NewClient(cfg.Addon.URL,
		addon.WithTimeout(cfg.Addon.Timeout),
		addon.WithRateLimit(cfg.Addon.RateLimit, cfg.Addon.Burst),
		addon.WithBreakerThreshold(cfg.Addon.BreakerThreshold),
		addon.WithManifestCache(cache.NewTTL[string, *addon.Manifest](cfg.Addon.ManifestTTL, nil)),
		addon.WithMetaCache(cache.NewTTL[string, *addon.Meta](cfg.Addon.MetaTTL, nil)),
		addon.WithLogger(logger),
	)

	a.catalog, err = store.NewCatalogStore(cfg.Catalog.Dir, cfg.Addon.URL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open catalog store: %w", err)
	}
	a.closers = append(a.closers, a.catalog)
	catalogStore := store.Chain(a.catalog, store.Logging(logger), store.Metrics())

	coord := coordinator.New(
		coordinator.WithStrictReentrancy(cfg.Sync.StrictReentrancy),
		coordinator.WithLogger(logger),
	)

	a.writer = catalog.NewWriter(catalogStore, catalog.Paths{
		Root:         cfg.Catalog.Root,
		SwarmGateway: cfg.Sync.SwarmGatewayURL,
	}, logger)
	importer := catalog.NewImporter(catalogStore, a.writer, coord, a.client, logger)

	reconciler := reconcile.New(catalogStore, a.client, a.writer,
		reconcile.WithPolicy(candidate.Policy{DisableSwarm: cfg.Sync.DisableSwarm}),
		reconcile.WithCoordinator(coord),
		reconcile.WithFreshness(cfg.Sync.Freshness, nil),
		reconcile.WithLogger(logger),
	)

	a.library = library.NewService(a.client, catalogStore, a.writer, importer, reconciler,
		library.WithParallelism(cfg.Sync.Parallelism),
		library.WithLogger(logger),
	)
	a.queries = library.NewQueries(catalogStore, a.writer)
	a.search = search.NewService(a.queries, a.client, a.writer, importer, search.WithLogger(logger))

	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}

	logger.Debug("engine ready", "addon", a.client.BaseURL(), "store", a.catalog.Path())
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)
}

// Close stops the metrics endpoint and closes the store and log file
func (a *app) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}
