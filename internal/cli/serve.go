package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ataa/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string

	// ready, when set, receives the bound address once the listener is up.
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync and allocation API of a hub or the core",
		Long: `Serve starts the HTTP API on a hub or the core. A hub also syncs with the
core every sync.interval. Both rescore households on
sync.recompute_schedule. The server stops on SIGINT or SIGTERM.

Example:
  ataa serve --config hub.yaml
  ataa serve --config core.yaml --listen :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts.RootOptions, cmd, func(ctx context.Context, a *App) (any, error) {
				return serve(ctx, opts, a)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func serve(ctx context.Context, opts *ServeOptions, a *App) (any, error) {
	if !a.Config.Serves() {
		return nil, NewExitError(ExitCommandError, "the field tier does not serve; use autosync")
	}
	issuer, authn, err := a.authServices()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid auth config", err)
	}

	handler := httpapi.NewHandler(httpapi.Services{
		Store:         a.Store,
		Orchestrator:  a.Orchestrator,
		Authenticator: authn,
		Issuer:        issuer,
		Scorer:        a.Scorer,
		Predictor:     a.Predictor,
		Optimizer:     a.Optimizer,
		Matching:      a.Matching,
		Metrics:       a.Metrics,
		Limiter:       httpapi.NewRateLimiter(a.Config.RateLimit.RPS, a.Config.RateLimit.Burst, a.Logger),
	}, a.Logger)

	addr := a.Config.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", addr), err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := schedule(a, a.Client)
	if err != nil {
		ln.Close()
		return nil, err
	}
	sched.Start()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	a.Logger.Info("serving",
		"tier", a.Config.Tier,
		"hub_id", a.Config.HubID,
		"addr", ln.Addr().String())
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("shutdown incomplete", "error", err)
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return nil, fmt.Errorf("serve: %w", serveErr)
	}
	return "server stopped", nil
}
