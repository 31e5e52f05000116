package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ataa/internal/rules"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Tier   string   `json:"tier,omitempty"`
	Rules  string   `json:"rules"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config and scoring rules without opening the database",
		Long: `Validate loads the config (file, .env and ATAA_* variables) and the CUE
rules file it names, and reports every problem found. Nothing is written.

Example:
  ataa validate --config hub.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	res := ValidationResult{Valid: true, Rules: "defaults"}

	cfg, err := loadConfig(opts)
	if err != nil {
		res.Valid = false
		res.Errors = append(res.Errors, err.Error())
	} else {
		res.Tier = cfg.Tier
		if cfg.RulesFile != "" {
			res.Rules = cfg.RulesFile
			if _, err := rules.Load(cfg.RulesFile); err != nil {
				res.Valid = false
				res.Errors = append(res.Errors, err.Error())
			}
		}
	}

	if err := formatter.Success(res); err != nil {
		return err
	}
	if !res.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
