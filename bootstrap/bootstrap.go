// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/apicore/adapters/clock"
	apihttp "github.com/artpar/apicore/adapters/http"
	"github.com/artpar/apicore/adapters/idgen"
	"github.com/artpar/apicore/adapters/memory"
	"github.com/artpar/apicore/adapters/metrics"
	"github.com/artpar/apicore/adapters/notify"
	"github.com/artpar/apicore/adapters/redis"
	"github.com/artpar/apicore/adapters/remote"
	"github.com/artpar/apicore/adapters/sqlite"
	"github.com/artpar/apicore/app"
	"github.com/artpar/apicore/config"
	"github.com/artpar/apicore/core/events"
	"github.com/artpar/apicore/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         *sqlite.DB
	Metrics    *metrics.Collector
	Manager    *app.Manager
	HTTPServer *http.Server

	// Adapters (for cleanup)
	transports []*apihttp.Transport
	closers    []io.Closer
	holder     *config.Holder
	stopOnce   sync.Once
}

// Options provides optional configuration for application initialization.
type Options struct {
	Version string

	// Logger overrides the logger built from the logging section.
	Logger *zerolog.Logger

	// Registerer receives the metrics. Defaults to a private registry served
	// on the metrics path.
	Registerer prometheus.Registerer
}

// New creates and initializes the application from cfg. Durable fields and
// variables are loaded; endpoints are not hydrated until Hydrate or Run.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := SetupLogger(cfg.Logging)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger.Info().Msg("initializing apicore")

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	if err := a.init(cfg, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// NewFromHolder creates the application from a hot-reloadable config.
// Reloads re-apply endpoint and variable seeds, mock mode and log level.
func NewFromHolder(h *config.Holder, opts Options) (*App, error) {
	a, err := New(h.Get(), opts)
	if err != nil {
		return nil, err
	}
	a.holder = h
	if a.Metrics != nil {
		h.SetObserver(a.Metrics)
	}
	h.OnChange(a.applyConfig)
	return a, nil
}

func (a *App) init(cfg *config.Config, opts Options) error {
	ctx := context.Background()
	logger := a.Logger
	clk := clock.Real{}

	var handler http.Handler
	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			private := prometheus.NewRegistry()
			reg = private
			handler = promhttp.HandlerFor(private, promhttp.HandlerOpts{})
		} else if g, ok := reg.(prometheus.Gatherer); ok {
			handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
		}
		a.Metrics = metrics.NewWithRegistry(reg)
		logger.Info().Msg("prometheus metrics enabled")
	}

	stores, err := a.initStores(cfg)
	if err != nil {
		return err
	}

	cache, err := a.initCache(cfg, clk)
	if err != nil {
		return err
	}

	transports, err := a.initTransports(cfg)
	if err != nil {
		return err
	}

	var observer ports.CallObserver
	if a.Metrics != nil {
		observer = a.Metrics
	}

	bus := events.NewBus(logger)
	hooks := app.NewHookService()

	registry := app.NewRegistryService(app.RegistryDeps{
		Remote:   stores.remote,
		Local:    stores.local,
		Bus:      bus,
		Clock:    clk,
		Observer: observer,
	}, logger, app.RegistryConfig{})

	proxy := app.NewProxyService(app.ProxyDeps{
		Endpoints:  registry,
		Transports: transports,
		Cache:      cache,
		Hooks:      hooks,
		Notifier:   notify.NewLogNotifier(logger),
		Observer:   observer,
		Clock:      clk,
		IDGen:      idgen.UUID{},
	}, logger, app.ProxyConfig{MockMode: cfg.Runtime.MockMode})

	fields := app.NewFieldService(stores.fields, hooks, clk, logger)
	if err := fields.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to load field definitions")
	}

	variables := app.NewVariableService(stores.variables, cfg.Runtime.HostInfo(clk.Now()), logger)
	if err := variables.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to load variables")
	}

	a.Manager = app.NewManager(app.ManagerDeps{
		Registry:  registry,
		Proxy:     proxy,
		Fields:    fields,
		Variables: variables,
		Bus:       bus,
	}, logger)

	a.applyVariableSeeds(ctx, cfg)

	api := apihttp.NewHandler(a.Manager, logger)
	health := apihttp.NewHealthHandler(registry)
	router := apihttp.NewRouter(api, health, logger, apihttp.RouterConfig{
		Metrics:        a.Metrics,
		MetricsHandler: handler,
		MetricsPath:    cfg.Metrics.Path,
		Version:        opts.Version,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return nil
}

type storeSet struct {
	remote    ports.RemoteEndpointStore
	local     ports.LocalEndpointCache
	fields    ports.FieldStore
	variables ports.VariableStore
}

func (a *App) initStores(cfg *config.Config) (storeSet, error) {
	var s storeSet

	if cfg.Remote.URL != "" {
		client := remote.NewClient(remote.ClientConfig{
			BaseURL: cfg.Remote.URL,
			APIKey:  cfg.Remote.APIKey,
			Timeout: cfg.Remote.Timeout,
			Headers: cfg.Remote.Headers,
		})
		s.remote = remote.NewEndpointStore(client)
		a.Logger.Info().Str("url", cfg.Remote.URL).Msg("using remote endpoint store")
	} else {
		s.remote = memory.NewEndpointStore()
	}

	if cfg.Database.Driver == "memory" {
		s.local = memory.NewEndpointStore()
		s.fields = memory.NewFieldStore()
		s.variables = memory.NewVariableStore()
		return s, nil
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return s, fmt.Errorf("init database: %w", err)
	}
	a.DB = db
	if err := db.Migrate(context.Background()); err != nil {
		return s, fmt.Errorf("migrate: %w", err)
	}
	a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

	s.local = sqlite.NewEndpointCache(db)
	s.fields = sqlite.NewFieldStore(db)
	s.variables = sqlite.NewVariableStore(db)
	return s, nil
}

func (a *App) initCache(cfg *config.Config, clk ports.Clock) (ports.ResponseCache, error) {
	if cfg.Cache.Backend != "redis" {
		return memory.NewResponseCache(clk), nil
	}

	rc := redis.New(cfg.Cache.Address, cfg.Cache.Password, cfg.Cache.DB, redis.WithPrefix(cfg.Cache.Prefix))
	a.closers = append(a.closers, rc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.Logger.Info().Str("address", cfg.Cache.Address).Msg("using redis response cache")
	return rc, nil
}

func (a *App) initTransports(cfg *config.Config) (map[string]ports.Transport, error) {
	names := make([]string, 0, len(cfg.Transports))
	for name := range cfg.Transports {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]ports.Transport, len(names))
	for _, name := range names {
		tc := cfg.Transports[name]
		t, err := apihttp.NewTransport(apihttp.TransportConfig{
			Name:            name,
			BaseURL:         tc.BaseURL,
			Token:           tc.Token,
			Headers:         tc.Headers,
			Timeout:         tc.Timeout,
			MaxIdleConns:    tc.MaxIdleConns,
			IdleConnTimeout: tc.IdleConnTimeout,
			Breaker: apihttp.BreakerConfig{
				FailureThreshold: tc.Breaker.FailureThreshold,
				OpenTimeout:      tc.Breaker.OpenTimeout,
				Interval:         tc.Breaker.Interval,
				MaxRequests:      tc.Breaker.MaxRequests,
			},
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("transport %s: %w", name, err)
		}
		a.transports = append(a.transports, t)
		out[name] = t
	}
	return out, nil
}

// Hydrate loads endpoint definitions and registers the configured seeds.
func (a *App) Hydrate(ctx context.Context) error {
	err := a.Manager.Registry.Hydrate(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("endpoint hydration failed")
	}
	a.applyEndpointSeeds(ctx, a.Config)
	return err
}

func (a *App) applyEndpointSeeds(ctx context.Context, cfg *config.Config) {
	seeds, err := cfg.EndpointSeeds()
	if err != nil {
		a.Logger.Error().Err(err).Msg("invalid endpoint seeds")
		return
	}
	for _, e := range seeds {
		if _, err := a.Manager.Registry.Register(ctx, e.Key, e); err != nil {
			a.Logger.Error().Err(err).Str("endpoint", e.Key).Msg("failed to register seeded endpoint")
		}
	}
	if len(seeds) > 0 {
		a.Logger.Info().Int("endpoints", len(seeds)).Msg("seeded endpoints registered")
	}
}

// applyVariableSeeds sets seeded variables that are not already defined in
// their scope.
func (a *App) applyVariableSeeds(ctx context.Context, cfg *config.Config) {
	seeds, err := cfg.VariableSeeds()
	if err != nil {
		a.Logger.Error().Err(err).Msg("invalid variable seeds")
		return
	}
	for scope, vars := range seeds {
		for name, value := range vars {
			if _, ok := a.Manager.Variables.GetIn(scope, name); ok {
				continue
			}
			if err := a.Manager.Variables.Set(ctx, scope, name, value); err != nil {
				a.Logger.Warn().Err(err).Str("scope", string(scope)).Str("name", name).Msg("failed to seed variable")
			}
		}
	}
}

// applyConfig applies the reloadable parts of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	ctx := context.Background()

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Manager.Proxy.SetMockMode(cfg.Runtime.MockMode)
	a.applyEndpointSeeds(ctx, cfg)
	a.applyVariableSeeds(ctx, cfg)
	a.Config = cfg
}

// Run hydrates the registry in the background, starts the HTTP server and
// blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.Hydrate(ctx)

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.holder.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application. Pending registry writes are
// awaited before stores are closed.
func (a *App) Shutdown() error {
	a.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if a.holder != nil {
			a.holder.Stop()
		}

		if a.HTTPServer != nil {
			if err := a.HTTPServer.Shutdown(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("http server shutdown error")
			}
		}

		a.close()
		a.Logger.Info().Msg("shutdown complete")
	})
	return nil
}

func (a *App) close() {
	if a.Manager != nil {
		a.Manager.Registry.Close()
		a.Manager.Variables.EndSession()
	}
	for _, t := range a.transports {
		t.Close()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("close error")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}
}

// SetupLogger builds the process logger from the logging section.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
