package cli

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mart337i/Tempo/internal/application"
	"github.com/mart337i/Tempo/internal/config"
	"github.com/mart337i/Tempo/internal/logging"
	"github.com/mart337i/Tempo/internal/supervisor"
)

func serverCommand() Command {
	return Command{
		Name:    "server",
		Summary: "Start the HTTP server",
		Run:     runServer,
	}
}

func runServer(ctx context.Context, inv *Invocation) error {
	app := newFlagSet(inv, "server", "Start the HTTP server")
	name := app.Arg("name", "Application name shown in the API documentation").String()
	cfgFlag := addConfigFlag(app)

	var hostSet, portSet, reloadSet, workersSet bool
	host := app.Flag("host", "Interface to bind").IsSetByUser(&hostSet).String()
	port := app.Flag("port", "Port to bind").IsSetByUser(&portSet).Int()
	reload := app.Flag("reload", "Restart the server when addons or the config file change (--no-reload to disable)").
		IsSetByUser(&reloadSet).Bool()
	workers := app.Flag("workers", "Number of worker processes").IsSetByUser(&workersSet).Int()

	if help, err := parse(app, inv.Args); help || err != nil {
		return err
	}

	store, logger, err := loadConfig(cfgFlag, inv.Environ())
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	overrides := config.CLIOverrides{}
	if *name != "" {
		overrides.Name = name
	}
	if hostSet {
		overrides.Host = host
	}
	if portSet {
		overrides.Port = port
	}
	if reloadSet {
		overrides.Reload = reload
	}
	if workersSet {
		overrides.Workers = workers
	}
	store.ApplyOverrides(overrides)

	settings, err := store.Server()
	if err != nil {
		return err
	}
	if err := store.Export(); err != nil {
		return fmt.Errorf("failed to export configuration: %w", err)
	}

	watch := []string{settings.AddonsPath}
	if f := store.File(); f != "" {
		watch = append(watch, f)
	}

	logger.Info("starting server",
		zap.String("addr", settings.Addr()),
		zap.Int("workers", settings.Workers),
		zap.Bool("reload", settings.Reload),
	)
	return supervisor.Run(ctx, supervisor.Options{
		Workers:     settings.Workers,
		Reload:      settings.Reload,
		WatchPaths:  watch,
		Env:         store.EnvPairs(),
		GracePeriod: settings.ShutdownGracePeriod,
		Logger:      logger,
		Serve: func(ctx context.Context) error {
			a, err := application.FromEnvironment(inv.Environ(), logger)
			if err != nil {
				return err
			}
			return supervisor.Serve(ctx, a, settings.ShutdownGracePeriod, logger)
		},
	})
}

func workerCommand() Command {
	return Command{
		Name:    "worker",
		Summary: "Serve the application in a worker process (configured from the environment)",
		Hidden:  true,
		Run:     runWorker,
	}
}

// runWorker is the application-factory entry point of spawned processes. It
// reads configuration only from the environment.
func runWorker(ctx context.Context, inv *Invocation) error {
	app := newFlagSet(inv, "worker", "Serve the application in a worker process")
	if help, err := parse(app, inv.Args); help || err != nil {
		return err
	}

	environ := inv.Environ()
	store := config.FromEnvironment(environ)
	logger, err := logging.New(store.Logging())
	if err != nil {
		return err
	}
	if id := lookupEnv(environ, supervisor.WorkerIDEnv); id != "" {
		logger = logger.With(zap.String("worker", id))
	}
	defer func() {
		_ = logger.Sync()
	}()

	settings, err := store.Server()
	if err != nil {
		return err
	}

	return supervisor.Run(ctx, supervisor.Options{
		Logger: logger,
		Serve: func(ctx context.Context) error {
			a, err := application.FromEnvironment(environ, logger, application.WithListener(supervisor.Listen))
			if err != nil {
				return err
			}
			return supervisor.Serve(ctx, a, settings.ShutdownGracePeriod, logger)
		},
	})
}

func lookupEnv(environ []string, name string) string {
	for i := len(environ) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(environ[i], "="); ok && k == name {
			return v
		}
	}
	return ""
}
