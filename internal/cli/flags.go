package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/mart337i/Tempo/internal/config"
	"github.com/mart337i/Tempo/internal/logging"
)

// newFlagSet returns a kingpin application for one command. Help and errors
// are written to the invocation streams and never terminate the process.
func newFlagSet(inv *Invocation, name, summary string) *kingpin.Application {
	app := kingpin.New(Prog+" "+name, summary)
	app.UsageWriter(inv.Out)
	app.ErrorWriter(inv.Err)
	app.Terminate(nil)
	app.HelpFlag.Short('h')
	return app
}

// parse parses args into app. It reports true when -h/--help was requested
// and usage has been printed.
func parse(app *kingpin.Application, args []string) (bool, error) {
	for _, a := range args {
		if a == "--" {
			break
		}
		if a == "-h" || a == "--help" {
			app.Usage(nil)
			return true, nil
		}
	}
	if _, err := app.Parse(args); err != nil {
		return false, &UsageError{Err: err}
	}
	return false, nil
}

type configFlag struct {
	path string
	set  bool
}

func addConfigFlag(app *kingpin.Application) *configFlag {
	f := &configFlag{}
	app.Flag("config", "Path to the configuration file (ini, or yaml by extension)").
		Short('c').
		Default(config.DefaultFile).
		IsSetByUser(&f.set).
		StringVar(&f.path)
	return f
}

// loadConfig builds the store for a CLI command: defaults, the config file and
// the environment. The logger is built from the [logging] section, so the
// store is resolved once without a logger and once with it.
func loadConfig(f *configFlag, environ []string) (*config.Store, *zap.Logger, error) {
	opts := []config.Option{config.WithFile(f.path), config.WithEnviron(environ)}

	logger, err := logging.New(config.New(opts...).Logging())
	if err != nil {
		return nil, nil, err
	}
	if f.set {
		if _, err := os.Stat(f.path); errors.Is(err, fs.ErrNotExist) {
			logger.Warn("config file not found, using defaults", zap.String("path", f.path))
		}
	}

	store := config.New(append(opts, config.WithLogger(logger))...)
	return store, logger, nil
}
