package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/mart337i/Tempo/internal/addon"
	"github.com/mart337i/Tempo/internal/api"
	"github.com/mart337i/Tempo/internal/config"
	"github.com/mart337i/Tempo/internal/database"
)

// ListenFunc opens the server socket.
type ListenFunc func(network, addr string) (net.Listener, error)

// Option configures New.
type Option func(*options)

type options struct {
	listen  ListenFunc
	apiOpts []api.Option
}

// WithListener overrides how the server socket is opened. The worker runtime
// uses it to listen with SO_REUSEPORT.
func WithListener(fn ListenFunc) Option {
	return func(o *options) {
		o.listen = fn
	}
}

// WithAPIOptions appends options passed to api.New.
func WithAPIOptions(opts ...api.Option) Option {
	return func(o *options) {
		o.apiOpts = append(o.apiOpts, opts...)
	}
}

// App encapsulates the application dependencies and HTTP server.
type App struct {
	store    *config.Store
	settings config.ServerSettings
	db       *database.DB
	api      *api.App
	report   addon.Report
	logger   *zap.Logger
	server   *http.Server
	listen   ListenFunc

	addr net.Addr
	errc chan error
}

// New builds a fully configured application from store: it opens the
// database handle, registers every discovered addon and validates the merged
// route table. A route conflict aborts construction.
func New(store *config.Store, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{listen: net.Listen}
	for _, opt := range opts {
		opt(&o)
	}

	settings, err := store.Server()
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	db, err := database.Open(store.Database(), logger.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	apiOpts := append([]api.Option{
		api.WithLogging(settings.EnableRequestLogging),
		api.WithRateLimit(settings.RateLimitRPS, settings.RateLimitBurst),
	}, o.apiOpts...)
	app := api.New(api.Info{
		Title:       settings.Name,
		Description: settings.Description,
		Version:     settings.Version,
		OpenAPIURL:  settings.OpenAPIURL,
		DocsURL:     settings.DocsURL,
		MetricsURL:  settings.MetricsURL,
	}, logger, apiOpts...)

	descriptors, err := addon.Discover(settings.AddonsPath, logger.Named("addons"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to discover addons: %w", err)
	}
	report := addon.RegisterAll(app, descriptors, addon.Deps{DB: db, Logger: logger.Named("addons")})

	handler, err := app.Finalize()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to build route table: %w", err)
	}

	logger.Info("application configured",
		zap.String("name", settings.Name),
		zap.Int("addons", len(report.Registered)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("routes", len(app.Routes())),
	)

	return &App{
		store:    store,
		settings: settings,
		db:       db,
		api:      app,
		report:   report,
		logger:   logger,
		server:   NewServer(settings, handler),
		listen:   o.listen,
		errc:     make(chan error, 1),
	}, nil
}

// FromEnvironment is the zero-configuration factory used by worker processes:
// the store is rebuilt from environ only, never from command-line arguments.
func FromEnvironment(environ []string, logger *zap.Logger, opts ...Option) (*App, error) {
	store := config.FromEnvironment(environ, config.WithLogger(logger))
	return New(store, logger, opts...)
}

// NewServer creates and configures an HTTP server from the server settings.
func NewServer(settings config.ServerSettings, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              settings.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: settings.ReadHeaderTimeout,
		WriteTimeout:      settings.WriteTimeout,
		IdleTimeout:       settings.IdleTimeout,
	}
}

// Start binds the listen address and serves in a goroutine. Serve errors are
// delivered on Err.
func (a *App) Start() error {
	ln, err := a.listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	a.addr = ln.Addr()

	go func() {
		a.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", zap.Error(err))
			a.errc <- err
		}
		close(a.errc)
	}()
	return nil
}

// Err is closed when the server stops and carries the serve error, if any.
func (a *App) Err() <-chan error {
	return a.errc
}

// Addr returns the bound address once Start succeeded.
func (a *App) Addr() net.Addr {
	return a.addr
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done and releases the database handle.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close stops the server immediately and releases the database handle.
func (a *App) Close() error {
	err := a.server.Close()
	if cerr := a.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Settings returns the resolved server settings.
func (a *App) Settings() config.ServerSettings {
	return a.settings
}

// Store returns the configuration the application was built from.
func (a *App) Store() *config.Store {
	return a.store
}

// DB returns the shared database handle.
func (a *App) DB() *database.DB {
	return a.db
}

// Routes returns the validated public route table.
func (a *App) Routes() []api.RouteInfo {
	return a.api.Routes()
}

// Report returns the addon registration summary.
func (a *App) Report() addon.Report {
	return a.report
}
