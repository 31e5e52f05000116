package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/ataa/internal/matching"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/store"
)

// NewMatchCommand creates the match command and its subcommands.
func NewMatchCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match open offers to open requests and manage matches",
	}
	cmd.AddCommand(newMatchRunCommand(opts))
	cmd.AddCommand(newMatchListCommand(opts))
	cmd.AddCommand(newMatchTransitionCommand(opts))
	return cmd
}

func newMatchRunCommand(opts *RootOptions) *cobra.Command {
	var zone, category string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Pair open offers with open requests in a zone",
		Long: `Run pairs open offers with open requests of the same zone and category,
oldest first. Every category is matched unless --category is given.

Example:
  ataa match run --zone z1
  ataa match run --zone z1 --category food`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if zone == "" {
				return NewExitError(ExitCommandError, "--zone is required")
			}
			cats := model.Categories
			if category != "" {
				c := model.Category(category)
				if !c.Valid() {
					return NewExitError(ExitCommandError, "unknown category "+category)
				}
				cats = []model.Category{c}
			}
			keys := make([]matching.Key, len(cats))
			for i, c := range cats {
				keys[i] = matching.Key{ZoneID: zone, Category: c}
			}
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				matches := []model.Match{}
				err := a.Store.InTx(ctx, func(tx *store.Tx) error {
					ms, err := a.Matching.RunAll(ctx, tx, keys)
					matches = append(matches, ms...)
					return err
				})
				return matches, err
			})
		},
	}
	cmd.Flags().StringVar(&zone, "zone", "", "zone to match (required)")
	cmd.Flags().StringVar(&category, "category", "", "match one category only")
	return cmd
}

func newMatchListCommand(opts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List matches by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := model.MatchStatus(status)
			if !s.Valid() {
				return NewExitError(ExitCommandError, "unknown match status "+status)
			}
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				var out []model.Match
				err := a.Store.View(ctx, func(tx *store.Tx) error {
					var err error
					out, err = tx.Matches(ctx, s)
					return err
				})
				if out == nil {
					out = []model.Match{}
				}
				return out, err
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(model.MatchPending), "match status to list")
	return cmd
}

func newMatchTransitionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <match-id> <status>",
		Short: "Move a match along its lifecycle",
		Long: `Transition moves a match along pending -> accepted -> picked_up -> completed.
A pending or accepted match may be cancelled, which reopens its offer and
request.

Example:
  ataa match transition m-1 accepted`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				return a.Matching.Transition(ctx, args[0], model.MatchStatus(args[1]), operator)
			})
		},
	}
}
