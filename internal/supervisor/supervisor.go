package supervisor

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// WorkerIDEnv is set on every spawned worker process.
const WorkerIDEnv = "TEMPO_WORKER_ID"

var signalNotify = signal.Notify

// Server is an application that can be served in-process.
type Server interface {
	Start() error
	Err() <-chan error
	Shutdown(ctx context.Context) error
	Close() error
}

// Options configures Run.
type Options struct {
	Workers     int
	Reload      bool
	WatchPaths  []string
	Env         []string
	Executable  string
	Args        []string
	GracePeriod time.Duration
	Debounce    time.Duration
	Logger      *zap.Logger

	// Serve runs the application in the current process until ctx is done.
	Serve func(ctx context.Context) error
}

func (o *Options) setDefaults() error {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 10 * time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = 250 * time.Millisecond
	}
	if len(o.Args) == 0 {
		o.Args = []string{"worker"}
	}
	if o.Executable == "" && (o.Workers > 1 || o.Reload) {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		o.Executable = exe
	}
	return nil
}

// Run serves until SIGINT/SIGTERM or ctx cancellation. With one worker and no
// reload the application is served in-process through opts.Serve; otherwise
// worker processes are spawned and supervised.
func Run(ctx context.Context, opts Options) error {
	if err := opts.setDefaults(); err != nil {
		return err
	}

	ctx, stop := withSignals(ctx, opts.Logger)
	defer stop()

	switch {
	case opts.Reload:
		if opts.Workers > 1 {
			opts.Logger.Warn("reload enabled, running a single worker", zap.Int("workers", opts.Workers))
		}
		return runReload(ctx, opts)
	case opts.Workers > 1:
		if !ReusePortSupported {
			return errors.New("multiple workers require SO_REUSEPORT, which this platform does not support")
		}
		return runWorkers(ctx, opts)
	default:
		if opts.Serve == nil {
			return errors.New("no in-process serve function configured")
		}
		return opts.Serve(ctx)
	}
}

// withSignals cancels the returned context on SIGINT or SIGTERM.
func withSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			logger.Info("received signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Serve starts srv and blocks until ctx is done or the server fails, then
// shuts it down within grace. A failed graceful shutdown falls back to Close.
func Serve(ctx context.Context, srv Server, grace time.Duration, logger *zap.Logger) error {
	if err := srv.Start(); err != nil {
		return err
	}

	select {
	case err, ok := <-srv.Err():
		if ok && err != nil {
			_ = srv.Close()
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdown(srv, grace, logger)
	return nil
}

func shutdown(srv Server, timeout time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := srv.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
