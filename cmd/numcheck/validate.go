package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/numcheck/internal/app"
	"github.com/foxzi/numcheck/internal/report"
	"github.com/foxzi/numcheck/internal/validator"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate <number>...",
	Short: "Validate phone numbers against the country rules",
	Long: `Validate one or more phone numbers. No reachability lookup is made.
The command exits with an error when any number is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := app.LoadRules(cfg.Rules, nil)
	if err != nil {
		return err
	}
	table := store.Table()

	results := make([]validator.Result, len(args))
	invalid := 0
	for i, raw := range args {
		results[i] = validator.Validate(raw, table)
		if !results[i].Valid {
			invalid++
		}
	}

	if validateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		report.PrintValidation(cmd.OutOrStdout(), results)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d numbers invalid", invalid, len(args))
	}
	return nil
}
