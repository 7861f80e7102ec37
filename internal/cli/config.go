package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
)

func configCommand() Command {
	return Command{
		Name:    "config",
		Summary: "Print the merged configuration, or one key",
		Run:     runConfig,
	}
}

func runConfig(_ context.Context, inv *Invocation) error {
	app := newFlagSet(inv, "config", "Print the merged configuration, or one key")
	cfgFlag := addConfigFlag(app)
	key := app.Arg("key", "section.key, or a key defined in exactly one section").String()
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

	if *key != "" {
		v, err := store.Lookup(*key)
		if err != nil {
			return err
		}
		fmt.Fprintln(inv.Out, v)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(inv.Out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"SECTION", "KEY", "VALUE"})
	for _, section := range store.Sections() {
		items := store.Items(section)
		keys := make([]string, 0, len(items))
		for k := range items {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			t.AppendRow(table.Row{section, k, items[k]})
		}
	}
	t.Render()

	if f := store.File(); f != "" {
		fmt.Fprintf(inv.Out, "loaded from %s\n", f)
	}
	return nil
}
