package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/numcheck/internal/app"
	"github.com/foxzi/numcheck/internal/rules"
)

var rulesListRegion string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Country rule commands",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active country rules",
	RunE:  runRulesList,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a country rule file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesCheck,
}

func init() {
	rulesListCmd.Flags().StringVar(&rulesListRegion, "region", "", "Filter by region (francophone, anglophone, other)")

	rulesCmd.AddCommand(rulesListCmd, rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := app.LoadRules(cfg.Rules, nil)
	if err != nil {
		return err
	}
	table := store.Table()

	list := table.Rules()
	if rulesListRegion != "" {
		region := rules.Region(rulesListRegion)
		if !region.Valid() {
			return fmt.Errorf("unknown region %q", rulesListRegion)
		}
		list = table.ByRegion(region)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tCOUNTRY\tLENGTH\tPREFIXES\tREGION")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.CountryCode,
			r.CountryName,
			r.TotalLength,
			strings.Join(r.MobilePrefixes, ","),
			r.Region,
		)
	}
	w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d rules\n", len(list))
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	table, err := rules.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("rule file is invalid: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Rule file is valid: %d rules\n", table.Len())
	for _, region := range []rules.Region{rules.RegionFrancophone, rules.RegionAnglophone, rules.RegionOther} {
		if n := len(table.ByRegion(region)); n > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", region, n)
		}
	}
	return nil
}
