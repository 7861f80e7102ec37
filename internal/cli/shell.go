package cli

import (
	"context"

	"github.com/mart337i/Tempo/internal/api"
	"github.com/mart337i/Tempo/internal/application"
	"github.com/mart337i/Tempo/internal/database"
	"github.com/mart337i/Tempo/internal/shell"
)

func shellCommand() Command {
	return Command{
		Name:    "shell",
		Summary: "Start an interactive session with config, db and routes preloaded",
		Run:     runShell,
	}
}

func runShell(ctx context.Context, inv *Invocation) error {
	app := newFlagSet(inv, "shell", "Start an interactive session with config, db and routes preloaded")
	cfgFlag := addConfigFlag(app)
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

	db, err := database.Open(store.Database(), logger.Named("database"))
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	session := &shell.Session{
		Store:  store,
		DB:     db,
		Logger: logger,
		Routes: func() ([]api.RouteInfo, error) {
			a, err := application.New(store, logger)
			if err != nil {
				return nil, err
			}
			defer func() {
				_ = a.Close()
			}()
			return a.Routes(), nil
		},
	}
	return session.Run(ctx, inv.In, inv.Out)
}
