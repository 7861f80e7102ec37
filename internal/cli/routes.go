package cli

import (
	"context"
	"fmt"

	"github.com/mart337i/Tempo/internal/application"
	"github.com/mart337i/Tempo/internal/shell"
)

func routesCommand() Command {
	return Command{
		Name:    "routes",
		Summary: "Discover addons and print the merged route table",
		Run:     runRoutes,
	}
}

func runRoutes(_ context.Context, inv *Invocation) error {
	app := newFlagSet(inv, "routes", "Discover addons and print the merged route table")
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

	a, err := application.New(store, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	shell.RenderRoutes(inv.Out, a.Routes())
	for _, s := range a.Report().Skipped {
		fmt.Fprintf(inv.Out, "skipped addon %s: %s\n", s.Name, s.Reason)
	}
	return nil
}
