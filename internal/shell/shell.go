// Package shell is the interactive tempo session. It preloads the
// configuration, the database handle and the route table, and exposes them
// through a small command language.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/mart337i/Tempo/internal/api"
	"github.com/mart337i/Tempo/internal/config"
	"github.com/mart337i/Tempo/internal/database"
)

var errExit = errors.New("exit")

// Session holds the bindings available to shell commands.
type Session struct {
	Store  *config.Store
	DB     *database.DB
	Routes func() ([]api.RouteInfo, error)
	Logger *zap.Logger

	out io.Writer
}

const banner = `Tempo shell. Preloaded: config, db, routes.
Type 'help' for commands, 'exit' or Ctrl-D to leave.`

const helpText = `Commands:
  config                      print the merged configuration
  config <key>                look up section.key or an unambiguous key
  config get <section> <key>  print one value
  db status                   show whether a database is configured
  db ping                     check the database connection
  db query <sql>              run a query and print the rows
  db exec <sql>               run a statement and print rows affected
  routes                      print the route table
  help                        show this text
  exit, quit                  leave the shell`

// Run starts the session. A terminal gets a readline prompt with history and
// completion; any other input is read line by line.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if f, ok := in.(*os.File); ok && readline.IsTerminal(int(f.Fd())) {
		return s.interactive(ctx, f, out)
	}
	return s.scripted(ctx, in, out)
}

func (s *Session) interactive(ctx context.Context, in *os.File, out io.Writer) error {
	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "tempo> ",
		HistoryFile:       filepath.Join(home, ".tempo_history"),
		AutoComplete:      completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             in,
		Stdout:            out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	s.out = rl.Stdout()
	fmt.Fprintln(s.out, banner)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *Session) scripted(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.Execute(ctx, scanner.Text()); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("config", readline.PcItem("get")),
		readline.PcItem("db",
			readline.PcItem("status"),
			readline.PcItem("ping"),
			readline.PcItem("query"),
			readline.PcItem("exec"),
		),
		readline.PcItem("routes"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

// Execute runs one command line.
func (s *Session) Execute(ctx context.Context, line string) error {
	if s.out == nil {
		s.out = io.Discard
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	switch fields[0] {
	case "exit", "quit":
		return errExit
	case "help", "?":
		fmt.Fprintln(s.out, helpText)
		return nil
	case "config":
		return s.config(fields[1:])
	case "db":
		if len(fields) < 2 {
			return errors.New("usage: db status|ping|query <sql>|exec <sql>")
		}
		_, rest, _ := strings.Cut(line, fields[1])
		return s.db(ctx, fields[1], strings.TrimSpace(rest))
	case "routes":
		return s.routes()
	default:
		return fmt.Errorf("unknown command %q, type 'help' for the list of commands", fields[0])
	}
}

func (s *Session) config(args []string) error {
	switch {
	case len(args) == 0:
		fmt.Fprint(s.out, s.Store.String())
		return nil
	case args[0] == "get":
		if len(args) != 3 {
			return errors.New("usage: config get <section> <key>")
		}
		if !s.Store.Has(args[1], args[2]) {
			return &config.KeyError{Key: args[1] + "." + args[2]}
		}
		fmt.Fprintln(s.out, s.Store.Get(args[1], args[2], ""))
		return nil
	case len(args) == 1:
		v, err := s.Store.Lookup(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, v)
		return nil
	default:
		return errors.New("usage: config [<key>] | config get <section> <key>")
	}
}

func (s *Session) db(ctx context.Context, sub, rest string) error {
	switch sub {
	case "status":
		if !s.DB.IsConfigured() {
			fmt.Fprintln(s.out, "database: not configured")
			return nil
		}
		fmt.Fprintf(s.out, "database: configured (%s)\n", s.DB.Driver())
		return nil
	case "ping":
		ctx, cancel := context.WithTimeout(ctx, s.connectTimeout())
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "ok")
		return nil
	case "query":
		if rest == "" {
			return errors.New("usage: db query <sql>")
		}
		rows, err := s.DB.QueryMaps(ctx, rest)
		if err != nil {
			return err
		}
		renderRows(s.out, rows)
		return nil
	case "exec":
		if rest == "" {
			return errors.New("usage: db exec <sql>")
		}
		res, err := s.DB.Exec(ctx, rest)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			fmt.Fprintln(s.out, "ok")
			return nil
		}
		fmt.Fprintf(s.out, "%d row(s) affected\n", n)
		return nil
	default:
		return fmt.Errorf("unknown db command %q", sub)
	}
}

func (s *Session) connectTimeout() time.Duration {
	if s.Store == nil {
		return 5 * time.Second
	}
	return s.Store.Database().ConnectTimeout
}

func (s *Session) routes() error {
	if s.Routes == nil {
		return errors.New("route table not available")
	}
	routes, err := s.Routes()
	if err != nil {
		return err
	}
	RenderRoutes(s.out, routes)
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// RenderRoutes prints the route table.
func RenderRoutes(w io.Writer, routes []api.RouteInfo) {
	t := newTable(w)
	t.AppendHeader(table.Row{"OPERATION", "METHODS", "PATH", "SOURCE", "SUMMARY"})
	for _, r := range routes {
		t.AppendRow(table.Row{r.OperationID, strings.Join(r.Methods, ","), r.Path, r.Source, r.Summary})
	}
	t.Render()
}

func renderRows(w io.Writer, rows []map[string]any) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	columns := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	t := newTable(w)
	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i, c := range columns {
			r[i] = row[c]
		}
		t.AppendRow(r)
	}
	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}
