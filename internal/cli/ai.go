package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/ataa/internal/allocate"
	"github.com/roach88/ataa/internal/model"
)

// operator is the actor of allocation and match commands run from the CLI.
var operator = model.Actor{ID: "cli", Role: model.RoleAdmin}

// NewScoreCommand creates the score command.
func NewScoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score <household-id>",
		Short: "Compute a household's priority score with its breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				return a.Scorer.Score(ctx, args[0])
			})
		},
	}
}

// NewRecomputeCommand creates the recompute command.
func NewRecomputeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Rescore every household and persist the totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				return a.Scorer.RecomputeAll(ctx)
			})
		},
	}
}

// NewPredictCommand creates the predict command.
func NewPredictCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "predict <household-id>",
		Short: "Predict a household's likely needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				return a.Predictor.Predict(ctx, args[0])
			})
		},
	}
}

// AllocateOptions holds flags for the allocate command.
type AllocateOptions struct {
	*RootOptions
	allocate.Options
	Apply bool
}

// AllocateResult is the plan and, under --apply, the distributions
// created from it.
type AllocateResult struct {
	Plan          *allocate.Plan       `json:"plan"`
	Distributions []model.Distribution `json:"distributions,omitempty"`
	Failed        []string             `json:"failed,omitempty"`
}

// NewAllocateCommand creates the allocate command.
func NewAllocateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AllocateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Plan the allocation of available inventory to open needs",
		Long: `Allocate walks open needs by urgency, household priority and age and
assigns unreserved inventory to them. The plan is read-only unless --apply
is given, which turns each suggestion into a planned distribution at
--location and reserves its stock.

Example:
  ataa allocate --zone z1
  ataa allocate --zone z1 --location pp1 --apply
  ataa allocate complete d-123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Apply && opts.LocationID == "" {
				return NewExitError(ExitCommandError, "--apply requires --location")
			}
			return runWithApp(opts.RootOptions, cmd, func(ctx context.Context, a *App) (any, error) {
				return runAllocate(ctx, opts, a)
			})
		},
	}

	cmd.Flags().StringVar(&opts.ZoneID, "zone", "", "restrict to households in this zone")
	cmd.Flags().StringVar(&opts.LocationID, "location", "", "draw inventory from this location only")
	cmd.Flags().IntVar(&opts.MaxHouseholds, "max", 0, "maximum households to serve (0 uses the configured limit)")
	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "create planned distributions from the plan")

	cmd.AddCommand(newDistributionCommand(rootOpts, "complete", "Complete a planned distribution and close its needs"))
	cmd.AddCommand(newDistributionCommand(rootOpts, "cancel", "Cancel a planned distribution and release its reservations"))

	return cmd
}

func runAllocate(ctx context.Context, opts *AllocateOptions, a *App) (*AllocateResult, error) {
	plan, err := a.Optimizer.Optimize(ctx, opts.Options)
	if err != nil {
		return nil, err
	}
	res := &AllocateResult{Plan: plan}
	if !opts.Apply {
		return res, nil
	}
	var errs []error
	for _, s := range plan.Suggestions {
		d, err := a.Optimizer.Apply(ctx, s, opts.LocationID, operator)
		if err != nil {
			a.Logger.Warn("suggestion not applied", "household_id", s.HouseholdID, "error", err)
			res.Failed = append(res.Failed, s.HouseholdID)
			errs = append(errs, err)
			continue
		}
		res.Distributions = append(res.Distributions, *d)
	}
	if len(res.Distributions) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return res, nil
}

func newDistributionCommand(opts *RootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <distribution-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(opts, cmd, func(ctx context.Context, a *App) (any, error) {
				if verb == "complete" {
					return a.Optimizer.Complete(ctx, args[0], operator)
				}
				return a.Optimizer.Cancel(ctx, args[0], operator)
			})
		},
	}
}
