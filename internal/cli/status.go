package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ataa/internal/auth"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/orchestrator"
)

// StatusResult is the status command's output.
type StatusResult struct {
	Tier  string               `json:"tier"`
	HubID string               `json:"hub_id"`
	Sync  *orchestrator.Status `json:"sync"`
	Log   []model.SyncLogEntry `json:"log,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var showLog bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending counts, queue depth and the last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				st, err := orchestrator.ReadStatus(ctx, a.Store)
				if err != nil {
					return nil, err
				}
				res := &StatusResult{Tier: a.Config.Tier, HubID: a.Config.HubID, Sync: st}
				if showLog {
					if res.Log, err = orchestrator.RecentLog(ctx, a.Store); err != nil {
						return nil, err
					}
				}
				return res, nil
			})
		},
	}
	cmd.Flags().BoolVar(&showLog, "log", false, "include the most recent sync log entries")
	return cmd
}

// NewHashPasswordCommand creates the hash-password command, which prints a
// bcrypt hash for auth.accounts in a serving tier's config.
func NewHashPasswordCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for an account password",
		Long: `Hash-password prints the password_hash value for an account entry. The
password is read from stdin when not given as an argument.

Example:
  echo -n 's3cret' | ataa hash-password`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read password", err)
				}
				password = strings.TrimRight(string(data), "\r\n")
			}
			if password == "" {
				return NewExitError(ExitCommandError, "password must not be empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to hash password", err)
			}
			return f.Success(hash)
		},
	}
}
