package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

// runWithApp opens the tier's App, runs fn and renders its result. Errors
// are rendered too and returned as *ExitError.
func runWithApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *App) (any, error)) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	a, err := openApp(opts, cmd.ErrOrStderr())
	if err != nil {
		_ = f.Error(err)
		return err
	}
	defer a.Close()

	out, err := fn(cmd.Context(), a)
	if err != nil {
		_ = f.Error(err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return wrapOp(cmd.CommandPath()+" failed", err)
	}
	return f.Success(out)
}
