package cli

import (
	"context"
	"fmt"

	"github.com/mart337i/Tempo/internal/version"
)

func helpCommand() Command {
	return Command{
		Name:    "help",
		Summary: "Show the list of commands, or the usage of one command",
		Run:     runHelp,
	}
}

func runHelp(ctx context.Context, inv *Invocation) error {
	if len(inv.Args) > 0 {
		name := inv.Args[0]
		cmd, ok := inv.Registry.Lookup(name)
		if !ok {
			return &UsageError{Err: fmt.Errorf("%w %q", ErrUnknownCommand, name)}
		}
		sub := *inv
		sub.Args = []string{"--help"}
		return cmd.Run(ctx, &sub)
	}

	cmds := inv.Registry.Commands()
	width := 0
	for _, c := range cmds {
		width = max(width, len(c.Name))
	}

	fmt.Fprintf(inv.Out, "usage: %s [-h] <command> [<args> ...]\n\nCommands:\n", Prog)
	for _, c := range cmds {
		fmt.Fprintf(inv.Out, "  %-*s  %s\n", width, c.Name, c.Summary)
	}
	fmt.Fprintf(inv.Out, "\nUse '%s <command> --help' to see the options of a command.\n", Prog)
	return nil
}

func versionCommand() Command {
	return Command{
		Name:    "version",
		Summary: "Print the tempo version",
		Run: func(_ context.Context, inv *Invocation) error {
			app := newFlagSet(inv, "version", "Print the tempo version")
			if help, err := parse(app, inv.Args); help || err != nil {
				return err
			}
			fmt.Fprintln(inv.Out, version.String())
			return nil
		},
	}
}
