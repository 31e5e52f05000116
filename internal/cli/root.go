package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/model"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string
	EnvFile  string
	Database string

	// Clock and IDs override the system clock and UUIDv7 IDs in tests.
	Clock clock.Clock
	IDs   model.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ataa CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ataa",
		Short: "ataa - offline-first aid registration, sync and allocation",
		Long: `ataa runs one tier of the aid network: a field device, a hub or the core.

Field devices record households and needs offline and push them to their hub.
Hubs serve field devices, match offers to requests and relay to the core.
The core serves hubs and holds the merged view.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with ATAA_* variables")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path (overrides config)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewAutoSyncCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewRecomputeCommand(opts))
	cmd.AddCommand(NewPredictCommand(opts))
	cmd.AddCommand(NewAllocateCommand(opts))
	cmd.AddCommand(NewMatchCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
