package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runWorkers spawns opts.Workers processes and waits for all of them. A
// worker exiting while ctx is still live stops the whole pool.
func runWorkers(ctx context.Context, opts Options) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= opts.Workers; i++ {
		id := i
		g.Go(func() error {
			err := runWorker(gctx, opts, id)
			if gctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = fmt.Errorf("worker %d exited", id)
			}
			return err
		})
	}

	opts.Logger.Info("workers started", zap.Int("workers", opts.Workers))
	err := g.Wait()
	if ctx.Err() != nil {
		opts.Logger.Info("workers stopped")
		return nil
	}
	return err
}

// runWorker runs one worker process until it exits or ctx is done. On
// cancellation the worker gets an interrupt and GracePeriod to exit before it
// is killed.
func runWorker(ctx context.Context, opts Options, id int) error {
	cmd := exec.CommandContext(ctx, opts.Executable, opts.Args...)
	cmd.Env = workerEnv(opts.Env, id)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = opts.GracePeriod

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker %d: %w", id, err)
	}
	opts.Logger.Info("worker started", zap.Int("worker", id), zap.Int("pid", cmd.Process.Pid))

	err := cmd.Wait()
	opts.Logger.Info("worker exited", zap.Int("worker", id), zap.Int("pid", cmd.Process.Pid), zap.Error(err))
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	return nil
}

// workerEnv layers the exported pairs over the inherited environment. Later
// duplicates win in exec.Cmd.Env.
func workerEnv(pairs []string, id int) []string {
	env := os.Environ()
	env = append(env, pairs...)
	return append(env, WorkerIDEnv+"="+strconv.Itoa(id))
}
