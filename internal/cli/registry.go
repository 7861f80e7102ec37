package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Prog is the program name used in usage messages.
const Prog = "tempo"

// ErrUnknownCommand is reported when no command matches the requested name.
var ErrUnknownCommand = errors.New("unknown command")

var commandName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Streams are the standard streams of one invocation.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Invocation is what a command receives when it runs.
type Invocation struct {
	Streams
	Args     []string
	Environ  func() []string
	Registry *Registry
}

// Command is one CLI verb.
type Command struct {
	Name    string
	Summary string
	// Hidden commands are dispatchable but not listed by help.
	Hidden bool
	Run    func(ctx context.Context, inv *Invocation) error
}

// UsageError marks bad command-line input. It maps to exit status 2.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// Registry maps command names to commands.
type Registry struct {
	commands map[string]Command
	streams  Streams
	environ  func() []string
}

// NewRegistry validates and indexes cmds. Names must match ^[a-z][a-z0-9_]*$
// and be unique.
func NewRegistry(cmds ...Command) (*Registry, error) {
	r := &Registry{
		commands: make(map[string]Command, len(cmds)),
		streams:  Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr},
		environ:  os.Environ,
	}
	for _, c := range cmds {
		if !commandName.MatchString(c.Name) {
			return nil, fmt.Errorf("invalid command name %q: must match %s", c.Name, commandName)
		}
		if c.Run == nil {
			return nil, fmt.Errorf("command %q has no run function", c.Name)
		}
		if _, ok := r.commands[c.Name]; ok {
			return nil, fmt.Errorf("command %q registered twice", c.Name)
		}
		r.commands[c.Name] = c
	}
	return r, nil
}

// SetStreams replaces the standard streams.
func (r *Registry) SetStreams(s Streams) {
	r.streams = s
}

// SetEnviron replaces the environment source.
func (r *Registry) SetEnviron(fn func() []string) {
	r.environ = fn
}

// Lookup returns the named command.
func (r *Registry) Lookup(name string) (Command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

// Commands returns the visible commands sorted by name.
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resolve picks the command name from args. A bare first argument names the
// command; no arguments or any other leading flag selects help, except
// -V/--version.
func resolve(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", nil
	}
	switch first := args[0]; {
	case first == "-V" || first == "--version":
		return "version", nil
	case strings.HasPrefix(first, "-"):
		return "help", nil
	default:
		return first, args[1:]
	}
}

// Dispatch runs the command selected by args (without the program name) and
// returns the process exit status. Unknown commands run nothing and exit 1.
func (r *Registry) Dispatch(ctx context.Context, args []string) int {
	name, rest := resolve(args)
	cmd, ok := r.commands[name]
	if !ok {
		fmt.Fprintf(r.streams.Err, "Unknown command %q.\nUse '%s --help' to see the list of available commands.\n", name, Prog)
		return 1
	}

	inv := &Invocation{Streams: r.streams, Args: rest, Environ: r.environ, Registry: r}
	if err := cmd.Run(ctx, inv); err != nil {
		fmt.Fprintf(r.streams.Err, "%s %s: error: %v\n", Prog, name, err)
		var usage *UsageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

// DefaultRegistry returns the registry of every built-in command.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		helpCommand(),
		serverCommand(),
		workerCommand(),
		shellCommand(),
		routesCommand(),
		configCommand(),
		versionCommand(),
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Dispatch runs args against the default registry with the process streams.
func Dispatch(ctx context.Context, args []string) int {
	return DefaultRegistry().Dispatch(ctx, args)
}
