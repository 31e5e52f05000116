package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ataa/internal/syncclient"
)

// NewPushCommand creates the push command.
func NewPushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push queued local changes upstream",
		Long: `Push drains the local sync queue and sends it to the upstream tier in one
batch. Acknowledged records are marked synced, or conflict when the upstream
rejected them, and leave the queue. On failure the queue is kept intact.

Example:
  ataa push --config field.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				if err := a.requireClient(); err != nil {
					return nil, err
				}
				return a.Client.Push(ctx)
			})
		},
	}
}

// NewPullCommand creates the pull command.
func NewPullCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Pull the zone's upstream changes since the last cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				if err := a.requireClient(); err != nil {
					return nil, err
				}
				return a.Client.Pull(ctx)
			})
		},
	}
}

// AutoSyncOptions holds flags for the autosync command.
type AutoSyncOptions struct {
	*RootOptions
	Once bool
}

// NewAutoSyncCommand creates the autosync command.
func NewAutoSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AutoSyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "autosync",
		Short: "Push and pull on the configured interval until interrupted",
		Long: `Autosync runs a push followed by a pull every sync.interval, and rescoring
on sync.recompute_schedule, until SIGINT or SIGTERM. An offline upstream
skips the cycle; the next tick retries.

Example:
  ataa autosync --config field.yaml
  ataa autosync --config field.yaml --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts.RootOptions, cmd, func(ctx context.Context, a *App) (any, error) {
				return autoSync(ctx, opts, a)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run one push and pull, then exit")

	return cmd
}

func autoSync(ctx context.Context, opts *AutoSyncOptions, a *App) (any, error) {
	if err := a.requireClient(); err != nil {
		return nil, err
	}
	if opts.Once {
		if err := a.Client.SyncOnce(ctx); err != nil {
			return nil, err
		}
		return "sync complete", nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := schedule(a, a.Client)
	if err != nil {
		return nil, err
	}
	sched.Start()
	a.Logger.Info("autosync started",
		"hub_id", a.Config.HubID,
		"interval", a.Config.Sync.Interval,
		"jobs", sched.Entries())

	<-ctx.Done()
	a.Logger.Info("shutting down autosync")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Upstream.SyncTimeout)
	defer cancel()
	sched.Stop(stopCtx)
	return "autosync stopped", nil
}

// schedule registers the periodic sync (when client is non-nil) and the
// recompute job.
func schedule(a *App, client *syncclient.Client) (*syncclient.Scheduler, error) {
	sched := syncclient.NewScheduler(a.Logger)
	if client != nil {
		if err := sched.AddSync(client, a.Config.Sync.Interval); err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid sync interval", err)
		}
	}
	if spec := a.Config.Sync.RecomputeSchedule; spec != "" {
		err := sched.AddFunc("recompute", spec, func(ctx context.Context) error {
			_, err := a.Scorer.RecomputeAll(ctx)
			return err
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid recompute schedule %q", spec), err)
		}
	}
	return sched, nil
}
